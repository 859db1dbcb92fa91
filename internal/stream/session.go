// Package stream turns bus subscriptions into per-connection notification
// streams and serves them over SSE and WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// DefaultHeartbeat is the keep-alive interval of a session.
const DefaultHeartbeat = 30 * time.Second

// Source tells where a frame came from.
type Source int

const (
	SourceWelcome Source = iota
	SourceBus
	SourceHeartbeat
)

func (s Source) String() string {
	switch s {
	case SourceWelcome:
		return "welcome"
	case SourceBus:
		return "bus"
	case SourceHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Frame is one outbound event of a session.
type Frame struct {
	Source Source
	Event  notify.Event
}

type Options struct {
	Heartbeat time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Session merges the welcome frame, admitted bus events and heartbeats into
// a single sequence. The welcome frame is always first.
type Session struct {
	bus    *notify.Bus
	sub    *notify.Subscription
	filter Filter
	ticker clockwork.Ticker
	clock  clockwork.Clock
	logger *slog.Logger

	frames chan Frame
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Open subscribes to bus and starts the session. It runs until Close is
// called or ctx ends; either way the subscription and the heartbeat ticker
// are released.
func Open(ctx context.Context, bus *notify.Bus, filter Filter, opts Options) *Session {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		bus:    bus,
		sub:    bus.Subscribe(),
		filter: filter,
		ticker: opts.Clock.NewTicker(opts.Heartbeat),
		clock:  opts.Clock,
		logger: opts.Logger,
		frames: make(chan Frame),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Frames returns the outbound sequence. It is closed when the session ends.
func (s *Session) Frames() <-chan Frame {
	return s.frames
}

// Done is closed once the session has released its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Filter() Filter {
	return s.filter
}

// Close stops the session and waits until it has unsubscribed and stopped
// its ticker. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.frames)
	defer s.ticker.Stop()
	defer s.bus.Unsubscribe(s.sub)

	if !s.emit(ctx, SourceWelcome, s.welcome()) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.sub.C:
			if !ok {
				return
			}
			if !s.filter.Admits(e) {
				continue
			}
			if !s.emit(ctx, SourceBus, e) {
				return
			}
		case <-s.ticker.Chan():
			if !s.emit(ctx, SourceHeartbeat, s.heartbeat()) {
				return
			}
		}
	}
}

func (s *Session) emit(ctx context.Context, src Source, e notify.Event) bool {
	select {
	case s.frames <- Frame{Source: src, Event: e}:
		return true
	case <-ctx.Done():
		return false
	}
}

type welcomeData struct {
	Modules []string `json:"modules"`
	UserID  string   `json:"userId,omitempty"`
}

func (s *Session) welcome() notify.Event {
	modules := s.filter.Modules()
	if modules == nil {
		modules = []string{}
	}
	payload, err := json.Marshal(welcomeData{Modules: modules, UserID: s.filter.UserID()})
	if err != nil {
		s.logger.Warn("welcome payload dropped", "error", err)
		payload = nil
	}
	return notify.Event{
		ID:        notify.NewID("welcome"),
		Kind:      notify.KindConnected,
		Severity:  notify.SeverityInfo,
		Module:    notify.SystemModule,
		Action:    notify.ActionConnect,
		Title:     "Connection established",
		Body:      "Subscribed to notifications: " + s.filter.Describe(),
		Payload:   payload,
		Timestamp: s.clock.Now(),
	}
}

func (s *Session) heartbeat() notify.Event {
	return notify.Event{
		ID:        notify.NewID("heartbeat"),
		Kind:      notify.KindHeartbeat,
		Severity:  notify.SeverityInfo,
		Module:    notify.SystemModule,
		Action:    notify.ActionPing,
		Title:     "Heartbeat",
		Body:      "Connection alive",
		Timestamp: s.clock.Now(),
	}
}
