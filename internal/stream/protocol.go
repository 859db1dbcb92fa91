package stream

import (
	"encoding/json"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// WSMessage is the WebSocket counterpart of an SSE frame. Event carries
// the same value as the SSE "event:" line.
type WSMessage struct {
	Event notify.Kind  `json:"event"`
	ID    string       `json:"id"`
	Data  notify.Event `json:"data"`
}

func encodeWS(e notify.Event) ([]byte, error) {
	return json.Marshal(WSMessage{Event: e.Kind, ID: e.ID, Data: e})
}

// PublishRequest is the body accepted by the publish endpoint.
type PublishRequest struct {
	Severity notify.Severity `json:"messageType"`
	Module   string          `json:"module"`
	Action   notify.Action   `json:"action"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data,omitempty"`
	UserID   string          `json:"userId,omitempty"`
}

func (p PublishRequest) draft() notify.Draft {
	d := notify.Draft{
		Kind:     notify.KindMessage,
		Severity: p.Severity,
		Module:   p.Module,
		Action:   p.Action,
		Title:    p.Title,
		Body:     p.Message,
		UserID:   p.UserID,
	}
	if d.Severity == "" {
		d.Severity = notify.SeverityInfo
	}
	if d.Action == "" {
		d.Action = notify.ActionMessage
	}
	if len(p.Data) > 0 {
		d.Data = p.Data
	}
	return d
}

// StatsResponse is served by the stats endpoint.
type StatsResponse struct {
	notify.Stats
	Sessions int64 `json:"sessions"`
	Process  any   `json:"process,omitempty"`
}
