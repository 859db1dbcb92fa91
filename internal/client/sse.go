package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	Type string
	ID   string
	Data string
}

// sseScanner reads Server-Sent Events from r. Events are delimited by
// blank lines; multiple data lines are joined with newlines; comment lines
// and unknown fields are ignored.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event carrying data. It returns false at EOF
// or on error.
func (s *sseScanner) Next() bool {
	s.current = sseEvent{}

	var (
		dataLines []string
		ev        sseEvent
		hasData   bool
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && hasData {
				ev.Data = strings.Join(dataLines, "\n")
				s.current = ev
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				ev.Data = strings.Join(dataLines, "\n")
				s.current = ev
				return true
			}
			ev = sseEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		}
	}
}

func (s *sseScanner) Event() sseEvent {
	return s.current
}

// Err returns the error that stopped the scanner, or nil at clean EOF.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// SSETransport opens notification streams over Server-Sent Events.
type SSETransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewSSETransport targets the server at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewSSETransport(baseURL string, logger *slog.Logger) *SSETransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

func (t *SSETransport) Dial(ctx context.Context, cfg Config) (Stream, error) {
	u := t.baseURL + "/notifications/stream"
	if q := cfg.query().Encode(); q != "" {
		u += "?" + q
	}

	// The stream outlives ctx; ctx only bounds the dial.
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse dial: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse dial: unexpected status %d", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse dial: unexpected content type %q", mt)
	}

	s := &sseStream{
		frames: make(chan notify.Event),
		body:   resp.Body,
		ctx:    streamCtx,
		cancel: cancel,
		logger: t.logger,
	}
	go s.read()
	return s, nil
}

type sseStream struct {
	frames chan notify.Event
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *sseStream) Frames() <-chan notify.Event { return s.frames }

func (s *sseStream) Close() error {
	s.closed.Store(true)
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *sseStream) Closed() bool { return s.closed.Load() }

func (s *sseStream) read() {
	defer func() {
		s.closed.Store(true)
		close(s.frames)
		s.Close()
	}()

	scanner := newSSEScanner(s.body)
	for scanner.Next() {
		raw := scanner.Event()
		var e notify.Event
		if err := json.Unmarshal([]byte(raw.Data), &e); err != nil {
			s.logger.Debug("sse frame ignored", "error", err)
			continue
		}
		if raw.Type != "" {
			e.Kind = notify.Kind(raw.Type)
		}
		if e.ID == "" {
			e.ID = raw.ID
		}
		select {
		case s.frames <- e:
		case <-s.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.logger.Debug("sse stream ended", "error", err)
	}
}
