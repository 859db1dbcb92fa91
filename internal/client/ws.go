package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// WSTransport opens notification streams over WebSocket.
type WSTransport struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWSTransport targets the server at baseURL. http and https URLs are
// rewritten to ws and wss.
func NewWSTransport(baseURL string, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSTransport{
		url:    u + "/notifications/ws",
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

func (t *WSTransport) Dial(ctx context.Context, cfg Config) (Stream, error) {
	u := t.url
	if q := cfg.query().Encode(); q != "" {
		u += "?" + q
	}

	conn, _, err := t.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &wsStream{
		conn:   conn,
		frames: make(chan notify.Event),
		ctx:    streamCtx,
		cancel: cancel,
		logger: t.logger,
	}
	go s.read()
	go s.pingLoop()
	return s, nil
}

type wsStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // serialises pings and the close frame
	frames  chan notify.Event
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *wsStream) Frames() <-chan notify.Event { return s.frames }

func (s *wsStream) Closed() bool { return s.closed.Load() }

func (s *wsStream) Close() error {
	s.closed.Store(true)
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) read() {
	defer func() {
		s.closed.Store(true)
		close(s.frames)
		s.Close()
	}()

	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debug("ws stream ended", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg wsEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		e := msg.Data
		if msg.Event != "" {
			e.Kind = msg.Event
		}
		select {
		case s.frames <- e:
		case <-s.ctx.Done():
			return
		}
	}
}

// pingLoop sends periodic pings until the stream closes.
func (s *wsStream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
