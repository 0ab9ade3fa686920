package transport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedTransport records send counts and latency around another
// Transport.
type InstrumentedTransport struct {
	next     Transport
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewInstrumentedTransport(next Transport, reg prometheus.Registerer) *InstrumentedTransport {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_send_total",
			Help: "Outbound venue notifications by result and failure kind.",
		},
		[]string{"result", "kind"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_send_duration_seconds",
			Help:    "Time spent in the outbound transport per message.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	if reg != nil {
		reg.MustRegister(total, duration)
	}
	return &InstrumentedTransport{next: next, total: total, duration: duration}
}

func (t *InstrumentedTransport) Send(ctx context.Context, to, subject, body string) error {
	start := time.Now()
	err := t.next.Send(ctx, to, subject, body)

	result, kind := "success", ""
	if err != nil {
		result, kind = "failure", string(KindOf(err))
	}
	t.total.WithLabelValues(result, kind).Inc()
	t.duration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}
