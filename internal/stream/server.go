package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/config"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

const (
	TransportSSE = "sse"
	TransportWS  = "ws"

	maxPublishBody = 64 << 10
	wsWriteTimeout = 10 * time.Second
)

// Metrics is implemented by the Prometheus collector.
type Metrics interface {
	SessionOpened(transport string)
	SessionClosed(transport string)
	FrameSent(transport string, kind notify.Kind)
	Handler() http.Handler
}

type Server struct {
	bus             *notify.Bus
	publisher       *notify.Publisher
	stream          config.StreamConfig
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string

	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      Metrics
	processStats func() any

	sessions atomic.Int64
}

func NewServer(cfg *config.Config, bus *notify.Bus, publisher *notify.Publisher, embeddedHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bus:             bus,
		publisher:       publisher,
		stream:          cfg.Stream,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       cfg.Server.AuthToken,
		clock:           clockwork.NewRealClock(),
		logger:          logger,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetClock replaces the clock that drives session heartbeats. Must be
// called before SetupRoutes.
func (s *Server) SetClock(c clockwork.Clock) {
	s.clock = c
}

// SetMetrics enables session metrics and the /metrics endpoint. Must be
// called before SetupRoutes.
func (s *Server) SetMetrics(m Metrics) {
	s.metrics = m
}

// SetProcessStats adds a process resource snapshot to the stats endpoint.
func (s *Server) SetProcessStats(fn func() any) {
	s.processStats = fn
}

// Sessions returns the number of open streams.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/notifications/stream", s.handleStream)
	mux.HandleFunc("/notifications/ws", s.handleWS)
	mux.HandleFunc("/notifications/publish", s.handlePublish)
	mux.HandleFunc("/notifications/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	if s.embeddedHandler != nil {
		s.logger.Info("serving embedded frontend")
		mux.Handle("/", securityHeaders(s.embeddedHandler))
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) open(ctx context.Context, r *http.Request) *Session {
	q := r.URL.Query()
	filter := ParseFilter(q.Get("modules"), q.Get("userId"))
	return Open(ctx, s.bus, filter, Options{
		Heartbeat: s.stream.HeartbeatInterval,
		Clock:     s.clock,
		Logger:    s.logger,
	})
}

func (s *Server) track(transport string) func() {
	s.sessions.Add(1)
	if s.metrics != nil {
		s.metrics.SessionOpened(transport)
	}
	return func() {
		s.sessions.Add(-1)
		if s.metrics != nil {
			s.metrics.SessionClosed(transport)
		}
	}
}

func (s *Server) sent(transport string, kind notify.Kind) {
	if s.metrics != nil {
		s.metrics.FrameSent(transport, kind)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		s.logger.Error("sse unavailable", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := s.open(r.Context(), r)
	defer sess.Close()
	defer s.track(TransportSSE)()

	log := s.logger.With("remote", r.RemoteAddr, "transport", TransportSSE)
	log.Info("notification stream opened", "filter", sess.Filter().Describe(), "userId", sess.Filter().UserID())

	if s.stream.RetryHint > 0 {
		if err := sse.Retry(s.stream.RetryHint); err != nil {
			log.Debug("notification stream write failed", "error", err)
			return
		}
	}

	for f := range sess.Frames() {
		if err := sse.WriteEvent(f.Event); err != nil {
			log.Debug("notification stream write failed", "error", err)
			break
		}
		s.sent(TransportSSE, f.Event.Kind)
	}
	log.Info("notification stream closed")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := s.open(ctx, r)
	defer sess.Close()
	defer s.track(TransportWS)()

	log := s.logger.With("remote", r.RemoteAddr, "transport", TransportWS)
	log.Info("notification stream opened", "filter", sess.Filter().Describe(), "userId", sess.Filter().UserID())

	// The client never sends anything meaningful; reading only detects
	// the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for f := range sess.Frames() {
		msg, err := encodeWS(f.Event)
		if err != nil {
			log.Warn("frame encode failed", "id", f.Event.ID, "error", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug("notification stream write failed", "error", err)
			break
		}
		s.sent(TransportWS, f.Event.Kind)
	}
	log.Info("notification stream closed")
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Module) == "" || strings.TrimSpace(req.Title) == "" {
		http.Error(w, "module and title are required", http.StatusBadRequest)
		return
	}

	s.publisher.Send(req.draft())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := StatsResponse{
		Stats:    s.bus.Stats(),
		Sessions: s.sessions.Load(),
	}
	if s.processStats != nil {
		resp.Process = s.processStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Notify-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves handler on addr until ctx ends, then shuts down.
// Cancelling ctx also cancels every request context, which ends the open
// notification streams so Shutdown does not wait on them.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
