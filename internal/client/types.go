package client

import (
	"context"
	"net/url"
	"time"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// State is the connection state shown to the user.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateError
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Config selects what a connection subscribes to. It is retained across
// reconnects.
type Config struct {
	UserID  string
	Modules string
}

// merge returns c with every non-empty field of next applied.
func (c Config) merge(next Config) Config {
	if next.UserID != "" {
		c.UserID = next.UserID
	}
	if next.Modules != "" {
		c.Modules = next.Modules
	}
	return c
}

func (c Config) query() url.Values {
	q := url.Values{}
	if c.UserID != "" {
		q.Set("userId", c.UserID)
	}
	if c.Modules != "" {
		q.Set("modules", c.Modules)
	}
	return q
}

// Stream is one open connection to the server.
type Stream interface {
	// Frames yields events until the connection ends, then is closed.
	Frames() <-chan notify.Event
	// Close tears the connection down. It does not wait for Frames to
	// drain.
	Close() error
	// Closed reports whether the connection has ended, either by Close or
	// because the server went away.
	Closed() bool
}

// Transport opens streams.
type Transport interface {
	Dial(ctx context.Context, cfg Config) (Stream, error)
}

// Toast is a notification popup request. A zero Duration means the toast
// stays until dismissed.
type Toast struct {
	Severity notify.Severity
	Title    string
	Body     string
	Duration time.Duration
	Event    notify.Event
}

// Sticky reports whether the toast needs manual dismissal.
func (t Toast) Sticky() bool {
	return t.Duration == 0
}

// Renderer draws client state. All calls come from the reconnector's single
// goroutine.
type Renderer interface {
	Status(State)
	Toast(Toast)
	Counter(n int)
}

// wsEnvelope mirrors the server's WebSocket frame.
type wsEnvelope struct {
	Event notify.Kind  `json:"event"`
	ID    string       `json:"id"`
	Data  notify.Event `json:"data"`
}

// ServerStats mirrors the stats endpoint response.
type ServerStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Sessions    int64  `json:"sessions"`
	Process     *struct {
		RSSBytes   uint64  `json:"rssBytes"`
		CPUPercent float64 `json:"cpuPercent"`
		Threads    int32   `json:"threads"`
		Goroutines int     `json:"goroutines"`
	} `json:"process,omitempty"`
}

// PublishRequest mirrors the publish endpoint body.
type PublishRequest struct {
	Severity notify.Severity `json:"messageType,omitempty"`
	Module   string          `json:"module"`
	Action   notify.Action   `json:"action,omitempty"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	UserID   string          `json:"userId,omitempty"`
}
