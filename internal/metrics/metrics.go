package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "music_room"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	advances    *prometheus.CounterVec
	resolves    *prometheus.CounterVec
	resolveDur  prometheus.Histogram
}

// New registers the collectors. rooms reports the live room count.
func New(rooms func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open realtime connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Realtime events emitted, by type.",
		}, []string{"type"}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_advances_total",
			Help:      "Current-track transitions, by cause.",
		}, []string{"cause"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_resolutions_total",
			Help:      "Stream URL resolutions, by outcome.",
		}, []string{"outcome"}),
		resolveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_resolution_seconds",
			Help:      "Time spent resolving stream URLs, retries included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.events, m.advances, m.resolves, m.resolveDur,
	)
	if rooms != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms held in the registry.",
		}, func() float64 { return float64(rooms()) }))
	}

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) EventEmitted(eventType string) {
	if m != nil {
		m.events.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) TrackAdvanced(cause string) {
	if m != nil {
		m.advances.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) StreamResolved(outcome string, took time.Duration) {
	if m != nil {
		m.resolves.WithLabelValues(outcome).Inc()
		m.resolveDur.Observe(took.Seconds())
	}
}
