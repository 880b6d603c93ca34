package session

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/protocol"
)

type metrics struct {
	processed *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	pending   *prometheus.GaugeVec
	requests  *prometheus.HistogramVec
	joined    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "popcore",
			Name:      "messages_processed_total",
			Help:      "Messages committed to a LAO, by object and action.",
		}, []string{"object", "action"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "popcore",
			Name:      "messages_rejected_total",
			Help:      "Messages rejected, by reason.",
		}, []string{"reason"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "popcore",
			Name:      "pending_messages",
			Help:      "Messages parked until their predecessor arrives.",
		}, []string{"lao"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "popcore",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the server, by method and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "popcore",
			Name:      "laos_joined",
			Help:      "LAOs the engine currently follows.",
		}),
	}
	for _, c := range []prometheus.Collector{m.processed, m.rejected, m.pending, m.requests, m.joined} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeRequest(method string, start time.Time, err error) {
	outcome := "ok"
	var answerErr *protocol.Error
	switch {
	case errors.As(err, &answerErr):
		outcome = "error"
	case err != nil:
		outcome = "failed"
	}
	m.requests.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
}

// reason labels a rejection by its JSON-RPC error code.
func reason(err error) string {
	switch domain.Code(err) {
	case protocol.CodeInvalidAction:
		return "invalid_action"
	case protocol.CodeInvalidResource:
		return "invalid_resource"
	case protocol.CodeDuplicateResource:
		return "duplicate_resource"
	case protocol.CodeInvalidMessageField:
		return "invalid_message_field"
	case protocol.CodeAccessDenied:
		return "access_denied"
	}
	return "internal"
}
