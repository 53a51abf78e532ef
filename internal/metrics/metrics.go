// Package metrics exposes prometheus collectors for the message store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type StoreMetrics struct {
	messages      prometheus.Gauge
	writes        *prometheus.CounterVec
	writeDuration prometheus.Histogram
}

// NewStoreMetrics creates the collectors and registers them with reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatapp",
			Name:      "messages",
			Help:      "Number of messages held by the in-memory store.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatapp",
			Name:      "message_writes_total",
			Help:      "Durable message writes by result.",
		}, []string{"result"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatapp",
			Name:      "message_write_seconds",
			Help:      "Latency of durable message writes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.messages, m.writes, m.writeDuration)
	return m
}

func (m *StoreMetrics) SetMessages(n int) {
	if m == nil {
		return
	}
	m.messages.Set(float64(n))
}

func (m *StoreMetrics) ObserveWrite(started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(result).Inc()
	m.writeDuration.Observe(time.Since(started).Seconds())
}
