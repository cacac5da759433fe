package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AttemptsTotal     *prometheus.CounterVec
	DeadLetteredTotal *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	SendDurationMs    *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formroom_notification_attempts_total",
			Help: "Total delivery attempts by channel and outcome",
		}, []string{"channel", "status"}),
		DeadLetteredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formroom_notification_deadlettered_total",
			Help: "Total deliveries parked after exhausting retries, by channel",
		}, []string{"channel"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formroom_notification_queue_depth",
			Help: "Current number of queued delivery tasks",
		}),
		SendDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formroom_notification_send_duration_ms",
			Help:    "Latency of channel send calls in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"channel"}),
	}
}
