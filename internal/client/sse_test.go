package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/config"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/stream"
)

func TestSSEScanner(t *testing.T) {
	input := strings.Join([]string{
		"retry: 5000",
		"",
		": keep-alive comment",
		"event: message",
		"id: evt_1",
		"data: {\"a\":1}",
		"",
		"data: line one",
		"data: line two",
		"",
		"event: ignored-without-data",
		"",
		"data: tail-without-blank-line",
	}, "\n")

	s := newSSEScanner(strings.NewReader(input))

	require.True(t, s.Next())
	assert.Equal(t, sseEvent{Type: "message", ID: "evt_1", Data: `{"a":1}`}, s.Event())

	require.True(t, s.Next())
	assert.Equal(t, sseEvent{Data: "line one\nline two"}, s.Event())

	require.True(t, s.Next())
	assert.Equal(t, "tail-without-blank-line", s.Event().Data)

	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestSSEScanner_CRLF(t *testing.T) {
	s := newSSEScanner(strings.NewReader("event: ping\r\ndata: x\r\n\r\n"))
	require.True(t, s.Next())
	assert.Equal(t, sseEvent{Type: "ping", Data: "x"}, s.Event())
}

type liveServer struct {
	*httptest.Server
	bus   *notify.Bus
	clock *clockwork.FakeClock
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	bus := notify.NewBus()
	clock := clockwork.NewFakeClock()
	srv := stream.NewServer(config.Default(), bus, notify.NewPublisher(bus), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.SetClock(clock)

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &liveServer{Server: ts, bus: bus, clock: clock}
}

func nextFrame(t *testing.T, s Stream) notify.Event {
	t.Helper()
	select {
	case e, ok := <-s.Frames():
		require.True(t, ok, "stream ended")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return notify.Event{}
	}
}

// waitSubscribers blocks until the server's sessions are subscribed.
func waitSubscribers(t *testing.T, bus *notify.Bus, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Len() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestSSETransport(t *testing.T) {
	ls := newLiveServer(t)
	tr := NewSSETransport(ls.URL+"/", nil)

	s, err := tr.Dial(context.Background(), Config{UserID: "u1", Modules: "articles"})
	require.NoError(t, err)
	defer s.Close()

	welcome := nextFrame(t, s)
	assert.Equal(t, notify.KindConnected, welcome.Kind)
	assert.Equal(t, "Subscribed to notifications: articles", welcome.Body)

	waitSubscribers(t, ls.bus, 1)
	ls.bus.Publish(notify.Draft{Module: "users", Action: notify.ActionCreate, Title: "filtered out"})
	ls.bus.Publish(notify.Draft{Module: "articles", Action: notify.ActionCreate, Title: "for someone else", UserID: "u2"})
	ls.bus.Publish(notify.Draft{Module: "articles", Action: notify.ActionCreate, Severity: notify.SeveritySuccess, Title: "kept"})

	e := nextFrame(t, s)
	assert.Equal(t, notify.KindMessage, e.Kind)
	assert.Equal(t, "kept", e.Title)
	assert.NotEmpty(t, e.ID)

	ls.clock.Advance(stream.DefaultHeartbeat)
	assert.Equal(t, notify.KindHeartbeat, nextFrame(t, s).Kind)

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	waitSubscribers(t, ls.bus, 0)
}

func TestSSETransport_ServerGoneMarksClosed(t *testing.T) {
	ls := newLiveServer(t)
	s, err := NewSSETransport(ls.URL, nil).Dial(context.Background(), Config{})
	require.NoError(t, err)
	nextFrame(t, s)

	ls.CloseClientConnections()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-s.Frames():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Closed())
}

func TestSSETransport_RejectsNonStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	_, err := NewSSETransport(ts.URL, nil).Dial(context.Background(), Config{})
	assert.ErrorContains(t, err, "content type")
}

func TestSSETransport_RejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewSSETransport(ts.URL, nil).Dial(context.Background(), Config{})
	assert.ErrorContains(t, err, "status 404")
}

func TestSSETransport_StreamOutlivesDialContext(t *testing.T) {
	ls := newLiveServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewSSETransport(ls.URL, nil).Dial(ctx, Config{})
	require.NoError(t, err)
	defer s.Close()
	cancel()

	nextFrame(t, s)
	waitSubscribers(t, ls.bus, 1)
	ls.bus.Publish(notify.Draft{Module: "articles", Title: "after cancel"})
	assert.Equal(t, "after cancel", nextFrame(t, s).Title)
}

func TestReconnector_OverSSE(t *testing.T) {
	ls := newLiveServer(t)
	rec := &recorder{}
	rc := NewReconnector(NewSSETransport(ls.URL, nil), rec, Options{})
	defer rc.Close()

	rc.Connect(Config{})
	require.Eventually(t, func() bool { return rc.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
	waitSubscribers(t, ls.bus, 1)

	ls.bus.Publish(notify.Draft{Module: "articles", Action: notify.ActionDelete, Severity: notify.SeverityError, Title: "gone"})
	require.Eventually(t, func() bool { return rc.Received() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, toasts, _ := rec.snapshot()
	require.Len(t, toasts, 2)
	assert.Equal(t, "Connection established", toasts[0].Title)
	assert.True(t, toasts[1].Sticky())

	rc.Disconnect()
	waitSubscribers(t, ls.bus, 0)
}
