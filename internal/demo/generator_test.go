package demo

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// drainEvents collects all events currently in the subscription without
// blocking.
func drainEvents(sub *notify.Subscription) []notify.Event {
	var events []notify.Event
	for {
		select {
		case ev := <-sub.C:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestGenerator_StepCyclesThroughActions(t *testing.T) {
	bus := notify.NewBus(notify.WithBuffer(64))
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	g := NewGenerator(notify.NewPublisher(bus), time.Second, nil, nil)

	n := len(catalogue)
	for tick := 1; tick <= 4*n; tick++ {
		g.step(tick)
	}

	events := drainEvents(sub)
	require.Len(t, events, 4*n)

	wantActions := []notify.Action{notify.ActionCreate, notify.ActionUpdate, notify.ActionDelete, notify.ActionMessage}
	for i, e := range events {
		it := catalogue[i%n]
		assert.Equal(t, it.module, e.Module, "event %d", i)
		assert.Equal(t, wantActions[i/n], e.Action, "event %d", i)
		if it.private {
			assert.Equal(t, DemoUser, e.UserID)
		} else {
			assert.True(t, e.Public())
		}
		assert.NotEmpty(t, e.Payload)
	}

	assert.Equal(t, notify.SeverityError, events[3*n].Severity)
	assert.Equal(t, "Error in articles", events[3*n].Title)
}

func TestGenerator_PublishesOnTicker(t *testing.T) {
	bus := notify.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	clock := clockwork.NewFakeClock()
	g := NewGenerator(notify.NewPublisher(bus), 3*time.Second, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(3 * time.Second)
	select {
	case e := <-sub.C:
		assert.Equal(t, "articles", e.Module)
		assert.Equal(t, notify.ActionCreate, e.Action)
	case <-time.After(time.Second):
		t.Fatal("no demo event published")
	}
}
