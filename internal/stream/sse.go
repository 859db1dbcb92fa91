package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// ErrNotFlushable is returned when the response writer cannot stream.
var ErrNotFlushable = errors.New("stream: response writer does not support flushing")

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the event-stream headers and flushes them so the client
// sees the connection open before the first frame.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNotFlushable
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Retry tells the browser how long to wait before reconnecting.
func (s *sseWriter) Retry(d time.Duration) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteEvent writes one frame named after the event kind.
func (s *sseWriter) WriteEvent(e notify.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", e.ID, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %s\ndata: %s\n\n", e.Kind, e.ID, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
