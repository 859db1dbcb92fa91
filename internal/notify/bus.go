package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Observer receives delivery statistics after every publish. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	ObservePublish(e Event, delivered, dropped int)
	ObserveSubscribers(n int)
}

// Subscription receives events from a Bus.
type Subscription struct {
	C  <-chan Event
	ch chan Event

	dropped atomic.Uint64
}

// Dropped returns how many events were discarded because the
// subscription's queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Stats is a point-in-time view of bus counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Bus fans out events to every live subscriber with no retained history.
// Delivery happens under a single lock, so concurrent publishers never
// interleave and all subscribers observe the same order. A subscriber whose
// queue is full loses the event; the publisher never blocks.
type Bus struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	last      time.Time
	published uint64
	dropped   uint64
	closed    bool

	buffer   int
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for drop and payload warnings.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// WithClock sets the clock used to stamp event timestamps.
func WithClock(c clockwork.Clock) BusOption {
	return func(b *Bus) { b.clock = c }
}

// WithObserver attaches a delivery observer such as the metrics collector.
func WithObserver(o Observer) BusOption {
	return func(b *Bus) { b.observer = o }
}

// WithBuffer sets the per-subscriber queue length. Values below 1 are
// ignored.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. It receives every event published
// after this call, in publish order, until Unsubscribe.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[sub] = struct{}{}
	}
	n := len(b.subs)
	b.mu.Unlock()

	b.observeSubscribers(n)
	return sub
}

// Unsubscribe removes the subscription and closes its channel. It is safe
// to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	if ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		b.observeSubscribers(n)
	}
}

// Publish stamps the draft with an ID and timestamp and delivers it to
// every current subscriber. It never fails: a payload that cannot be
// encoded is dropped from the event, and full subscriber queues lose the
// event without affecting anyone else. With no subscribers the event is
// discarded.
func (b *Bus) Publish(d Draft) Event {
	e := Event{
		ID:       NewID("notif"),
		Kind:     d.Kind,
		Severity: d.Severity,
		Module:   d.Module,
		Action:   d.Action,
		Title:    d.Title,
		Body:     d.Body,
		UserID:   d.UserID,
		Origin:   d.Origin,
	}
	if e.Kind == "" {
		e.Kind = KindMessage
	}
	if d.Data != nil {
		raw, err := json.Marshal(d.Data)
		if err != nil {
			b.logger.Warn("notification payload dropped", "module", d.Module, "error", err)
		} else {
			e.Payload = raw
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return e
	}
	e.Timestamp = b.stamp()
	delivered, dropped := 0, 0
	for sub := range b.subs {
		select {
		case sub.ch <- e:
			delivered++
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	b.published++
	b.dropped += uint64(dropped)
	b.mu.Unlock()

	b.logger.Debug("notification published",
		"id", e.ID,
		"module", e.Module,
		"action", e.Action,
		"delivered", delivered,
	)
	if dropped > 0 {
		b.logger.Warn("subscriber queue full, notification dropped",
			"id", e.ID,
			"module", e.Module,
			"dropped", dropped,
		)
	}
	b.observePublish(e, delivered, dropped)
	return e
}

// stamp returns a timestamp strictly after the previous one. Must be
// called with b.mu held.
func (b *Bus) stamp() time.Time {
	now := b.clock.Now().Round(0)
	if !now.After(b.last) {
		now = b.last.Add(time.Nanosecond)
	}
	b.last = now
	return now
}

// Len returns the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats returns the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Subscribers: len(b.subs),
		Published:   b.published,
		Dropped:     b.dropped,
	}
}

// Close unsubscribes everyone. Later publishes are discarded and later
// subscriptions start closed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	b.observeSubscribers(0)
}

func (b *Bus) observePublish(e Event, delivered, dropped int) {
	if b.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus observer panicked", "panic", r)
		}
	}()
	b.observer.ObservePublish(e, delivered, dropped)
}

func (b *Bus) observeSubscribers(n int) {
	if b.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus observer panicked", "panic", r)
		}
	}()
	b.observer.ObserveSubscribers(n)
}
