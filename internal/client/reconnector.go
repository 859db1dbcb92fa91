package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultToastDuration  = 8 * time.Second
)

var (
	ErrStreamEnded = errors.New("client: stream ended")
	ErrStale       = errors.New("client: no frames within stale timeout")
)

type Options struct {
	// ReconnectDelay is the fixed wait between a failure and the next
	// attempt. Retries are unlimited.
	ReconnectDelay time.Duration
	// ToastDuration applies to every severity except error, which is
	// sticky.
	ToastDuration time.Duration
	// StaleTimeout forces a reconnect when no frame, heartbeats included,
	// arrives in time. Zero disables the check.
	StaleTimeout time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Reconnector keeps one notification stream open and drives a Renderer.
// Every state change runs on a single goroutine; public methods post work
// to it.
type Reconnector struct {
	transport Transport
	renderer  Renderer
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	stateSnap    atomic.Int32
	receivedSnap atomic.Int64

	// Owned by the loop goroutine.
	state      State
	cfg        Config
	received   int
	stream     Stream
	gen        uint64
	retry      clockwork.Timer
	stale      clockwork.Timer
	cancelDial context.CancelFunc
}

func NewReconnector(t Transport, r Renderer, opts Options) *Reconnector {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ToastDuration <= 0 {
		opts.ToastDuration = DefaultToastDuration
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rc := &Reconnector{
		transport: t,
		renderer:  r,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger,
		inbox:     make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
	rc.stateSnap.Store(int32(StateDisconnected))
	go rc.loop()
	return rc
}

// Connect opens a stream. Non-empty fields of cfg replace the stored
// configuration, which later reconnects reuse. An open stream is replaced.
func (r *Reconnector) Connect(cfg Config) {
	r.call(func() {
		r.cfg = r.cfg.merge(cfg)
		r.teardown()
		r.dial()
	})
}

// Disconnect closes the stream and cancels any pending reconnect. It
// returns once both are done.
func (r *Reconnector) Disconnect() {
	r.call(func() {
		r.teardown()
		r.setState(StateDisconnected)
	})
}

// ResetCounter zeroes the received counter.
func (r *Reconnector) ResetCounter() {
	r.call(func() {
		r.received = 0
		r.receivedSnap.Store(0)
		r.renderer.Counter(0)
	})
}

func (r *Reconnector) State() State {
	return State(r.stateSnap.Load())
}

// Received returns the number of notifications counted since start or the
// last reset.
func (r *Reconnector) Received() int {
	return int(r.receivedSnap.Load())
}

// Config returns the configuration used for the next connection.
func (r *Reconnector) Config() Config {
	var cfg Config
	r.call(func() { cfg = r.cfg })
	return cfg
}

// Close disconnects and stops the reconnector. It is safe to call more
// than once.
func (r *Reconnector) Close() {
	r.Disconnect()
	r.once.Do(func() { close(r.quit) })
	<-r.done
}

func (r *Reconnector) loop() {
	defer close(r.done)
	for {
		select {
		case f := <-r.inbox:
			f()
		case <-r.quit:
			return
		}
	}
}

// post queues f on the loop. It reports false once the loop has stopped.
func (r *Reconnector) post(f func()) bool {
	select {
	case r.inbox <- f:
		return true
	case <-r.done:
		return false
	}
}

// call runs f on the loop and waits for it.
func (r *Reconnector) call(f func()) {
	finished := make(chan struct{})
	if !r.post(func() { f(); close(finished) }) {
		return
	}
	select {
	case <-finished:
	case <-r.done:
	}
}

func (r *Reconnector) setState(s State) {
	if r.state == s {
		return
	}
	r.state = s
	r.stateSnap.Store(int32(s))
	r.renderer.Status(s)
}

// teardown invalidates everything tied to the current attempt.
func (r *Reconnector) teardown() {
	r.gen++
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
	r.stopStale()
	if r.cancelDial != nil {
		r.cancelDial()
		r.cancelDial = nil
	}
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
}

func (r *Reconnector) dial() {
	r.gen++
	gen := r.gen
	cfg := r.cfg
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelDial = cancel
	r.setState(StateConnecting)
	r.logger.Debug("connecting", "userId", cfg.UserID, "modules", cfg.Modules)

	go func() {
		s, err := r.transport.Dial(ctx, cfg)
		if !r.post(func() { r.onDial(gen, s, err) }) && s != nil {
			s.Close()
		}
	}()
}

func (r *Reconnector) onDial(gen uint64, s Stream, err error) {
	if gen != r.gen {
		if s != nil {
			s.Close()
		}
		return
	}
	if r.cancelDial != nil {
		r.cancelDial()
		r.cancelDial = nil
	}
	if err != nil {
		r.fail(err)
		return
	}

	r.stream = s
	r.setState(StateConnected)
	r.armStale(gen)
	go r.read(gen, s)
}

func (r *Reconnector) read(gen uint64, s Stream) {
	for e := range s.Frames() {
		e := e
		if !r.post(func() { r.onFrame(gen, e) }) {
			return
		}
	}
	r.post(func() { r.onStreamEnd(gen) })
}

func (r *Reconnector) onFrame(gen uint64, e notify.Event) {
	if gen != r.gen || r.state != StateConnected {
		return
	}
	r.armStale(gen)

	switch e.Kind {
	case notify.KindHeartbeat:
		return
	case notify.KindConnected:
		r.renderer.Toast(Toast{
			Severity: notify.SeverityInfo,
			Title:    e.Title,
			Body:     e.Body,
			Duration: r.opts.ToastDuration,
			Event:    e,
		})
		return
	}

	r.received++
	r.receivedSnap.Store(int64(r.received))
	r.renderer.Counter(r.received)

	t := Toast{
		Severity: e.Severity,
		Title:    e.Title,
		Body:     e.Body,
		Duration: r.opts.ToastDuration,
		Event:    e,
	}
	switch e.Severity {
	case notify.SeverityError:
		t.Duration = 0
	case notify.SeveritySuccess, notify.SeverityInfo, notify.SeverityWarning:
	default:
		t.Severity = notify.SeverityInfo
	}
	r.renderer.Toast(t)
}

func (r *Reconnector) onStreamEnd(gen uint64) {
	if gen != r.gen || r.state != StateConnected {
		return
	}
	r.fail(ErrStreamEnded)
}

func (r *Reconnector) armStale(gen uint64) {
	if r.opts.StaleTimeout <= 0 {
		return
	}
	r.stopStale()
	r.stale = r.clock.AfterFunc(r.opts.StaleTimeout, func() {
		r.post(func() { r.onStale(gen) })
	})
}

func (r *Reconnector) stopStale() {
	if r.stale != nil {
		r.stale.Stop()
		r.stale = nil
	}
}

func (r *Reconnector) onStale(gen uint64) {
	if gen != r.gen || r.state != StateConnected {
		return
	}
	r.logger.Warn("notification stream stale, forcing reconnect", "timeout", r.opts.StaleTimeout)
	if r.stream != nil {
		r.stream.Close()
	}
	r.fail(ErrStale)
}

// fail enters the error state and schedules a reconnect.
func (r *Reconnector) fail(err error) {
	r.stopStale()
	r.setState(StateError)
	r.logger.Warn("notification stream error", "error", err, "retry_in", r.opts.ReconnectDelay)
	r.armRetry(r.gen)
}

func (r *Reconnector) armRetry(gen uint64) {
	r.retry = r.clock.AfterFunc(r.opts.ReconnectDelay, func() {
		r.post(func() { r.onRetry(gen) })
	})
}

// onRetry reconnects only once the previous stream is confirmed closed;
// otherwise it checks again after another delay.
func (r *Reconnector) onRetry(gen uint64) {
	if gen != r.gen || r.state != StateError {
		return
	}
	r.retry = nil
	if r.stream != nil && !r.stream.Closed() {
		r.logger.Debug("previous stream still open, waiting")
		r.armRetry(gen)
		return
	}
	r.stream = nil
	r.dial()
}
