// Package procstats reports resource usage of the running server.
package procstats

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of the process.
type Snapshot struct {
	PID        int32         `json:"pid"`
	RSSBytes   uint64        `json:"rssBytes"`
	CPUPercent float64       `json:"cpuPercent"`
	Threads    int32         `json:"threads"`
	Goroutines int           `json:"goroutines"`
	Uptime     time.Duration `json:"uptimeNs"`
}

// Sampler reads statistics for one process.
type Sampler struct {
	proc    *process.Process
	started time.Time
}

// New returns a sampler for the current process.
func New() (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("procstats: open process: %w", err)
	}
	started := time.Now()
	if ms, err := proc.CreateTime(); err == nil {
		started = time.UnixMilli(ms)
	}
	return &Sampler{proc: proc, started: started}, nil
}

// Sample collects a snapshot. Fields the platform cannot report are left
// at zero rather than failing the whole sample.
func (s *Sampler) Sample() Snapshot {
	snap := Snapshot{
		PID:        s.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(s.started),
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		snap.RSSBytes = mem.RSS
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if n, err := s.proc.NumThreads(); err == nil {
		snap.Threads = n
	}
	return snap
}

// Any adapts Sample for the stats endpoint.
func (s *Sampler) Any() any {
	return s.Sample()
}
