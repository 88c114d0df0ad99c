package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	ecRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amulectl",
			Subsystem: "ec",
			Name:      "requests_total",
			Help:      "Total EC request/response exchanges.",
		},
		[]string{"opcode", "result"},
	)
	ecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amulectl",
			Subsystem: "ec",
			Name:      "request_duration_seconds",
			Help:      "EC round-trip duration in seconds, queue wait included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)
	ecPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "amulectl",
			Subsystem: "ec",
			Name:      "pending_requests",
			Help:      "Requests queued or in flight on the EC session.",
		},
	)
	ecReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amulectl",
			Subsystem: "ec",
			Name:      "reconnect_attempts_total",
			Help:      "EC reconnect attempts by outcome.",
		},
		[]string{"result"},
	)
	ecAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amulectl",
			Subsystem: "ec",
			Name:      "auth_total",
			Help:      "EC authentication handshakes by outcome.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ecRequests, ecDuration, ecPending, ecReconnects, ecAuth)
	})
}

func RecordRequest(opcode string, duration time.Duration, err error) {
	RegisterMetrics()
	ecRequests.WithLabelValues(opcode, resultLabel(err)).Inc()
	ecDuration.WithLabelValues(opcode).Observe(duration.Seconds())
}

func SetPending(n int) {
	RegisterMetrics()
	ecPending.Set(float64(n))
}

func RecordReconnectAttempt(err error) {
	RegisterMetrics()
	ecReconnects.WithLabelValues(resultLabel(err)).Inc()
}

func RecordAuth(err error) {
	RegisterMetrics()
	ecAuth.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
