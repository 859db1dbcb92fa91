// Package demo publishes a scripted stream of content-site notifications so
// the server can be exercised without a real backend.
package demo

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// DemoUser owns the user-scoped demo events.
const DemoUser = "demo-user"

type item struct {
	module string
	title  string
	// private items are scoped to DemoUser.
	private bool
}

var catalogue = []item{
	{module: "articles", title: "Getting started with Go"},
	{module: "vacancies", title: "Backend engineer"},
	{module: "companies", title: "Acme Corp"},
	{module: "resume", title: "Jane Doe CV", private: true},
	{module: "users", title: "jdoe"},
}

var errorTexts = []string{
	"validation failed",
	"duplicate name",
	"storage unavailable",
}

type Generator struct {
	pub      *notify.Publisher
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewGenerator(pub *notify.Publisher, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Generator{pub: pub, interval: interval, clock: clock, logger: logger}
}

// Start publishes one notification per interval until ctx ends.
func (g *Generator) Start(ctx context.Context) {
	g.logger.Info("demo mode enabled", "interval", g.interval, "modules", len(catalogue))
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tick++
			g.step(tick)
		}
	}
}

// step walks every catalogue item through create, update, delete and a
// failure, one item per tick.
func (g *Generator) step(tick int) {
	n := len(catalogue)
	it := catalogue[(tick-1)%n]
	phase := ((tick - 1) / n) % 4

	opts := []notify.Option{notify.WithData(map[string]any{"id": tick, "demo": true})}
	if it.private {
		opts = append(opts, notify.ForUser(DemoUser))
	}

	switch phase {
	case 0:
		g.pub.Created(it.module, it.title, opts...)
	case 1:
		g.pub.Updated(it.module, it.title, opts...)
	case 2:
		g.pub.Deleted(it.module, it.title, opts...)
	case 3:
		g.pub.Error(it.module, it.title, errorTexts[tick%len(errorTexts)], opts...)
	}
}
