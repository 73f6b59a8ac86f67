// Package metrics exposes runtime counters for the consultation channels.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "consult"

type Metrics struct {
	messages      *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	ratings       *prometheus.CounterVec
	connections   prometheus.Gauge
	presenceJoins prometheus.Counter
	swept         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages durably appended to channel logs.",
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Attachment uploads by result.",
		}, []string{"result"}),
		ratings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratings_total",
			Help:      "Recorded channel ratings by outcome.",
		}, []string{"outcome"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_live",
			Help:      "Open websocket connections.",
		}),
		presenceJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_joins_total",
			Help:      "Live session joins.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_expired_total",
			Help:      "Channels deactivated by the expiry sweeper.",
		}),
	}
	reg.MustRegister(m.messages, m.uploads, m.ratings, m.connections, m.presenceJoins, m.swept)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageAppended(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Rating(outcome string) {
	if m == nil {
		return
	}
	m.ratings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) PresenceJoin() {
	if m == nil {
		return
	}
	m.presenceJoins.Inc()
}

func (m *Metrics) ChannelsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
