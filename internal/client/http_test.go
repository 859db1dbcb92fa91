package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/config"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/stream"
)

func newAuthServer(t *testing.T, token string) (*httptest.Server, *notify.Bus) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AuthToken = token
	bus := notify.NewBus()
	srv := stream.NewServer(cfg, bus, notify.NewPublisher(bus), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, bus
}

func TestHTTPClient_Publish(t *testing.T) {
	ts, bus := newAuthServer(t, "s3cret")
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	c := NewHTTPClient(ts.URL+"/", "s3cret")
	err := c.Publish(context.Background(), PublishRequest{
		Severity: notify.SeverityWarning,
		Module:   "companies",
		Title:    "Check profile",
		Message:  "Missing logo",
		UserID:   "u7",
	})
	require.NoError(t, err)

	select {
	case e := <-sub.C:
		assert.Equal(t, "companies", e.Module)
		assert.Equal(t, notify.SeverityWarning, e.Severity)
		assert.Equal(t, "Missing logo", e.Body)
		assert.Equal(t, "u7", e.UserID)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
}

func TestHTTPClient_Unauthorized(t *testing.T) {
	ts, _ := newAuthServer(t, "s3cret")

	err := NewHTTPClient(ts.URL, "wrong").Publish(context.Background(), PublishRequest{Module: "m", Title: "t"})
	assert.ErrorContains(t, err, "401")

	_, err = NewHTTPClient(ts.URL, "").GetStats(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestHTTPClient_ValidationError(t *testing.T) {
	ts, _ := newAuthServer(t, "")
	err := NewHTTPClient(ts.URL, "").Publish(context.Background(), PublishRequest{Module: "m"})
	assert.ErrorContains(t, err, "module and title are required")
}

func TestHTTPClient_GetStats(t *testing.T) {
	ts, bus := newAuthServer(t, "s3cret")
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	bus.Publish(notify.Draft{Module: "articles", Title: "x"})

	stats, err := NewHTTPClient(ts.URL, "s3cret").GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Subscribers)
	assert.Equal(t, uint64(1), stats.Published)
	assert.Nil(t, stats.Process)
}
