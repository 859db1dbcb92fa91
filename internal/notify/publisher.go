package notify

import "fmt"

// Publisher is the surface business handlers use to announce changes.
// A nil *Publisher is valid and discards everything, so a missing
// notifier can never abort a create, update or delete.
type Publisher struct {
	bus    *Bus
	origin string
}

// NewPublisher returns a Publisher that sends to bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// WithOrigin returns a copy that tags every event with the given server
// instance name.
func (p *Publisher) WithOrigin(origin string) *Publisher {
	if p == nil {
		return nil
	}
	cp := *p
	cp.origin = origin
	return &cp
}

// Option adjusts a draft before it is published.
type Option func(*Draft)

// WithData attaches an arbitrary JSON-encodable payload.
func WithData(v any) Option {
	return func(d *Draft) { d.Data = v }
}

// ForUser scopes the event to a single user. Without it the event is
// public.
func ForUser(userID string) Option {
	return func(d *Draft) { d.UserID = userID }
}

// Created announces a newly created object.
func (p *Publisher) Created(module, title string, opts ...Option) {
	p.send(Draft{
		Severity: SeveritySuccess,
		Module:   module,
		Action:   ActionCreate,
		Title:    title + " created",
		Body:     fmt.Sprintf("New object %q was created successfully", title),
	}, opts)
}

// Updated announces a modified object.
func (p *Publisher) Updated(module, title string, opts ...Option) {
	p.send(Draft{
		Severity: SeverityInfo,
		Module:   module,
		Action:   ActionUpdate,
		Title:    title + " updated",
		Body:     fmt.Sprintf("Object '%s' was updated", title),
	}, opts)
}

// Deleted announces a removed object.
func (p *Publisher) Deleted(module, title string, opts ...Option) {
	p.send(Draft{
		Severity: SeverityWarning,
		Module:   module,
		Action:   ActionDelete,
		Title:    title + " deleted",
		Body:     fmt.Sprintf("Object '%s' was deleted", title),
	}, opts)
}

// Error reports a failed operation. Clients keep error notifications on
// screen until dismissed.
func (p *Publisher) Error(module, title, errText string, opts ...Option) {
	p.send(Draft{
		Severity: SeverityError,
		Module:   module,
		Action:   ActionMessage,
		Title:    "Error in " + module,
		Body:     title + ": " + errText,
	}, opts)
}

// Send publishes an arbitrary draft.
func (p *Publisher) Send(d Draft) {
	p.send(d, nil)
}

func (p *Publisher) send(d Draft, opts []Option) {
	if p == nil || p.bus == nil {
		return
	}
	d.Kind = KindMessage
	if d.Origin == "" {
		d.Origin = p.origin
	}
	for _, opt := range opts {
		opt(&d)
	}
	p.bus.Publish(d)
}
