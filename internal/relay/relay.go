// Package relay bridges the local notification bus to a NATS subject so
// several server instances behave as one logical bus.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// Conn is the part of a message broker the relay needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func() error, err error)
}

// envelope carries an event between instances. Origin travels outside the
// event because it never appears on the client wire format.
type envelope struct {
	Origin string       `json:"origin"`
	Event  notify.Event `json:"event"`
}

// Relay forwards events published on this instance to the broker and
// republishes events from other instances locally. Events are tagged with
// the instance name so nothing is forwarded twice.
type Relay struct {
	bus     *notify.Bus
	conn    Conn
	subject string
	name    string
	logger  *slog.Logger

	mu          sync.Mutex
	sub         *notify.Subscription
	unsubscribe func() error
	cancel      context.CancelFunc
	done        chan struct{}
}

func New(bus *notify.Bus, conn Conn, subject, name string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:     bus,
		conn:    conn,
		subject: subject,
		name:    name,
		logger:  logger.With("component", "relay", "subject", subject),
	}
}

// Start begins relaying in both directions until ctx ends or Close is
// called.
func (r *Relay) Start(ctx context.Context) error {
	if r.name == "" {
		return errors.New("relay: instance name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("relay: already started")
	}

	unsubscribe, err := r.conn.Subscribe(r.subject, r.handleRemote)
	if err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", r.subject, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.sub = r.bus.Subscribe()
	r.unsubscribe = unsubscribe
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.forward(ctx, r.sub, r.done)
	r.logger.Info("relay started", "instance", r.name)
	return nil
}

// Close stops both directions and waits for the forwarder to exit.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.bus.Unsubscribe(r.sub)

	var err error
	if r.unsubscribe != nil {
		err = r.unsubscribe()
	}
	r.done = nil
	return err
}

func (r *Relay) forward(ctx context.Context, sub *notify.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.Origin != "" && e.Origin != r.name {
				continue
			}
			data, err := json.Marshal(envelope{Origin: r.name, Event: e})
			if err != nil {
				r.logger.Warn("relay encode failed", "id", e.ID, "error", err)
				continue
			}
			if err := r.conn.Publish(r.subject, data); err != nil {
				r.logger.Warn("relay publish failed", "id", e.ID, "error", err)
			}
		}
	}
}

func (r *Relay) handleRemote(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("relay message ignored", "error", err)
		return
	}
	if env.Origin == "" || env.Origin == r.name {
		return
	}

	e := env.Event
	d := notify.Draft{
		Kind:     e.Kind,
		Severity: e.Severity,
		Module:   e.Module,
		Action:   e.Action,
		Title:    e.Title,
		Body:     e.Body,
		UserID:   e.UserID,
		Origin:   env.Origin,
	}
	if len(e.Payload) > 0 {
		d.Data = e.Payload
	}
	r.bus.Publish(d)
}
