package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

type fakeStream struct {
	frames chan notify.Event
	closed atomic.Bool
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan notify.Event, 16)}
}

func (s *fakeStream) Frames() <-chan notify.Event { return s.frames }
func (s *fakeStream) Closed() bool                { return s.closed.Load() }

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	s.end()
	return nil
}

func (s *fakeStream) end() {
	s.once.Do(func() { close(s.frames) })
}

type fakeTransport struct {
	mu       sync.Mutex
	dials    []Config
	streams  []*fakeStream
	failures int
}

func (t *fakeTransport) Dial(_ context.Context, cfg Config) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials = append(t.dials, cfg)
	if t.failures > 0 {
		t.failures--
		return nil, errors.New("connection refused")
	}
	s := newFakeStream()
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

func (t *fakeTransport) lastDial() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials[len(t.dials)-1]
}

func (t *fakeTransport) stream(i int) *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[i]
}

type recorder struct {
	mu       sync.Mutex
	states   []State
	toasts   []Toast
	counters []int
}

func (r *recorder) Status(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) Toast(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recorder) Counter(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, n)
}

func (r *recorder) snapshot() ([]State, []Toast, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]Toast(nil), r.toasts...), append([]int(nil), r.counters...)
}

type harness struct {
	t     *testing.T
	tr    *fakeTransport
	rec   *recorder
	clock *clockwork.FakeClock
	rc    *Reconnector
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		tr:    &fakeTransport{},
		rec:   &recorder{},
		clock: clockwork.NewFakeClock(),
	}
	opts.Clock = h.clock
	h.rc = NewReconnector(h.tr, h.rec, opts)
	t.Cleanup(h.rc.Close)
	return h
}

func (h *harness) waitState(s State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.rc.State() == s },
		time.Second, 5*time.Millisecond, "want state %s, have %s", s, h.rc.State())
}

func (h *harness) waitDials(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.tr.dialCount() == n },
		time.Second, 5*time.Millisecond, "want %d dials", n)
}

// waitTimers blocks until n timers are pending on the fake clock.
func (h *harness) waitTimers(n int) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(h.t, h.clock.BlockUntilContext(ctx, n))
}

func TestReconnector_ConnectAndRender(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{UserID: "u1"})
	h.waitState(StateConnected)
	assert.Equal(t, Config{UserID: "u1"}, h.tr.lastDial())

	s := h.tr.stream(0)
	s.frames <- notify.Event{Kind: notify.KindConnected, Severity: notify.SeverityInfo, Title: "Connection established", Body: "Subscribed to notifications: all modules"}
	s.frames <- notify.Event{Kind: notify.KindHeartbeat}
	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: notify.SeveritySuccess, Title: "A created", Body: "ok"}
	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: notify.SeverityError, Title: "Error in articles", Body: "boom"}
	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: "mystery", Title: "?"}

	require.Eventually(t, func() bool { return h.rc.Received() == 3 }, time.Second, 5*time.Millisecond)

	states, toasts, counters := h.rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected}, states)
	assert.Equal(t, []int{1, 2, 3}, counters)
	require.Len(t, toasts, 4)

	assert.Equal(t, "Connection established", toasts[0].Title)
	assert.Equal(t, notify.SeverityInfo, toasts[0].Severity)
	assert.Equal(t, DefaultToastDuration, toasts[0].Duration)

	assert.Equal(t, notify.SeveritySuccess, toasts[1].Severity)
	assert.False(t, toasts[1].Sticky())

	assert.Equal(t, notify.SeverityError, toasts[2].Severity)
	assert.True(t, toasts[2].Sticky())
	assert.Equal(t, "boom", toasts[2].Body)

	assert.Equal(t, notify.SeverityInfo, toasts[3].Severity)
}

func TestReconnector_ReconnectsAfterFixedDelay(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{UserID: "u1", Modules: "articles"})
	h.waitState(StateConnected)

	h.tr.stream(0).Close()
	h.waitState(StateError)
	h.waitTimers(1)

	h.clock.Advance(DefaultReconnectDelay - time.Millisecond)
	assert.Equal(t, 1, h.tr.dialCount())

	h.clock.Advance(time.Millisecond)
	h.waitDials(2)
	h.waitState(StateConnected)
	assert.Equal(t, Config{UserID: "u1", Modules: "articles"}, h.tr.lastDial())

	states, _, _ := h.rec.snapshot()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateError, StateConnecting, StateConnected}, states)
}

func TestReconnector_UnlimitedRetriesOnDialFailure(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Second})
	h.tr.failures = 3

	h.rc.Connect(Config{})
	for i := 1; i <= 3; i++ {
		h.waitDials(i)
		h.waitState(StateError)
		h.waitTimers(1)
		h.clock.Advance(time.Second)
	}
	h.waitDials(4)
	h.waitState(StateConnected)
}

func TestReconnector_WaitsForPreviousStreamToClose(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	// The frames end but the handle does not report closed yet.
	s := h.tr.stream(0)
	s.end()
	h.waitState(StateError)
	h.waitTimers(1)

	h.clock.Advance(DefaultReconnectDelay)
	h.waitTimers(1)
	assert.Equal(t, 1, h.tr.dialCount())
	assert.Equal(t, StateError, h.rc.State())

	s.closed.Store(true)
	h.clock.Advance(DefaultReconnectDelay)
	h.waitDials(2)
	h.waitState(StateConnected)
}

func TestReconnector_DisconnectSuppressesPendingReconnect(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	h.tr.stream(0).Close()
	h.waitState(StateError)
	h.waitTimers(1)

	h.rc.Disconnect()
	assert.Equal(t, StateDisconnected, h.rc.State())

	h.clock.Advance(10 * DefaultReconnectDelay)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.tr.dialCount())
	assert.Equal(t, StateDisconnected, h.rc.State())
}

func TestReconnector_DisconnectClosesStream(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	h.rc.Disconnect()
	assert.True(t, h.tr.stream(0).Closed())
	assert.Equal(t, StateDisconnected, h.rc.State())

	states, _, _ := h.rec.snapshot()
	assert.Equal(t, StateDisconnected, states[len(states)-1])
}

func TestReconnector_StaleTimeoutForcesReconnect(t *testing.T) {
	h := newHarness(t, Options{StaleTimeout: 45 * time.Second})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)
	h.waitTimers(1)

	// Any frame re-arms the check for a full timeout.
	s := h.tr.stream(0)
	h.clock.Advance(30 * time.Second)
	s.frames <- notify.Event{Kind: notify.KindMessage}
	require.Eventually(t, func() bool { return h.rc.Received() == 1 }, time.Second, 5*time.Millisecond)
	h.waitTimers(1)

	h.clock.Advance(44 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateConnected, h.rc.State())

	h.clock.Advance(time.Second)
	h.waitState(StateError)
	assert.True(t, s.Closed())

	h.waitTimers(1)
	h.clock.Advance(DefaultReconnectDelay)
	h.waitDials(2)
	h.waitState(StateConnected)
}

func TestReconnector_StaleDisabledByDefault(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	h.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateConnected, h.rc.State())
}

func TestReconnector_ResetCounter(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	s := h.tr.stream(0)
	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: notify.SeverityInfo}
	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: notify.SeverityInfo}
	require.Eventually(t, func() bool { return h.rc.Received() == 2 }, time.Second, 5*time.Millisecond)

	h.rc.ResetCounter()
	assert.Equal(t, 0, h.rc.Received())

	s.frames <- notify.Event{Kind: notify.KindMessage, Severity: notify.SeverityInfo}
	require.Eventually(t, func() bool { return h.rc.Received() == 1 }, time.Second, 5*time.Millisecond)

	_, _, counters := h.rec.snapshot()
	assert.Equal(t, []int{1, 2, 0, 1}, counters)
}

func TestReconnector_CounterSurvivesReconnect(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	h.tr.stream(0).frames <- notify.Event{Kind: notify.KindMessage}
	require.Eventually(t, func() bool { return h.rc.Received() == 1 }, time.Second, 5*time.Millisecond)

	h.tr.stream(0).Close()
	h.waitState(StateError)
	h.waitTimers(1)
	h.clock.Advance(DefaultReconnectDelay)
	h.waitState(StateConnected)

	h.tr.stream(1).frames <- notify.Event{Kind: notify.KindMessage}
	require.Eventually(t, func() bool { return h.rc.Received() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReconnector_ConnectMergesConfig(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{UserID: "u1", Modules: "articles"})
	h.waitState(StateConnected)

	h.rc.Connect(Config{Modules: "users"})
	h.waitDials(2)
	h.waitState(StateConnected)

	assert.Equal(t, Config{UserID: "u1", Modules: "users"}, h.tr.lastDial())
	assert.Equal(t, Config{UserID: "u1", Modules: "users"}, h.rc.Config())
	assert.True(t, h.tr.stream(0).Closed(), "replaced stream must be closed")
}

func TestReconnector_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.rc.Connect(Config{})
	h.waitState(StateConnected)

	h.rc.Close()
	h.rc.Close()
	assert.True(t, h.tr.stream(0).Closed())

	// Calls after Close return instead of hanging.
	h.rc.Connect(Config{})
	h.rc.ResetCounter()
}
