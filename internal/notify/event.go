// Package notify holds the process-wide notification bus and the
// publishing helpers business handlers call after create, update and
// delete operations.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the stream frame an event is sent as.
type Kind string

const (
	KindMessage   Kind = "message"
	KindHeartbeat Kind = "heartbeat"
	KindConnected Kind = "connected"
)

// Severity selects how a client renders the notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Action is the domain operation that produced the event.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionMessage Action = "message"

	// Synthetic actions used by stream sessions.
	ActionConnect Action = "connect"
	ActionPing    Action = "ping"
)

// SystemModule tags events generated by the stream itself.
const SystemModule = "system"

// Event is an immutable notification. Values are copied on delivery;
// Payload is marshalled once at publish time and must not be modified.
type Event struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"type"`
	Severity  Severity        `json:"messageType"`
	Module    string          `json:"module"`
	Action    Action          `json:"action"`
	Title     string          `json:"title"`
	Body      string          `json:"message"`
	Payload   json.RawMessage `json:"data,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	// Origin names the server instance that first published the event.
	// Only the relay uses it; it never reaches stream clients.
	Origin string `json:"-"`
}

// Public reports whether the event is visible to every user.
func (e Event) Public() bool {
	return e.UserID == ""
}

// Draft is the caller-supplied part of an event. The bus fills in ID and
// Timestamp.
type Draft struct {
	Kind     Kind
	Severity Severity
	Module   string
	Action   Action
	Title    string
	Body     string
	Data     any
	UserID   string
	Origin   string
}

// NewID returns a unique event identifier with the given prefix, e.g.
// "notif_3f0c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
