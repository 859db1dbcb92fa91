// Package metrics exposes bus and stream counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

const namespace = "notify"

// Collector implements notify.Observer and stream.Metrics on a private
// registry.
type Collector struct {
	registry *prometheus.Registry

	published   *prometheus.CounterVec // module, action
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	subscribers prometheus.Gauge

	sessions       *prometheus.GaugeVec   // transport
	sessionsOpened *prometheus.CounterVec // transport
	frames         *prometheus.CounterVec // transport, kind
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Notifications published to the bus",
		}, []string{"module", "action"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Notifications handed to subscriber queues",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Notifications lost because a subscriber queue was full",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscribers",
			Help:      "Current bus subscribers",
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions",
			Help:      "Open notification streams",
		}, []string{"transport"}),
		sessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_opened_total",
			Help:      "Notification streams opened",
		}, []string{"transport"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Frames written to clients",
		}, []string{"transport", "kind"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.published,
		c.delivered,
		c.dropped,
		c.subscribers,
		c.sessions,
		c.sessionsOpened,
		c.frames,
	)
	return c
}

func (c *Collector) ObservePublish(e notify.Event, delivered, dropped int) {
	c.published.WithLabelValues(e.Module, string(e.Action)).Inc()
	c.delivered.Add(float64(delivered))
	c.dropped.Add(float64(dropped))
}

func (c *Collector) ObserveSubscribers(n int) {
	c.subscribers.Set(float64(n))
}

func (c *Collector) SessionOpened(transport string) {
	c.sessions.WithLabelValues(transport).Inc()
	c.sessionsOpened.WithLabelValues(transport).Inc()
}

func (c *Collector) SessionClosed(transport string) {
	c.sessions.WithLabelValues(transport).Dec()
}

func (c *Collector) FrameSent(transport string, kind notify.Kind) {
	c.frames.WithLabelValues(transport, string(kind)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
