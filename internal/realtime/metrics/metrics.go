package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectionsActive    prometheus.Gauge
	RoomsActive          prometheus.Gauge
	EventsInTotal        *prometheus.CounterVec
	EventsOutTotal       *prometheus.CounterVec
	EventsRejectedTotal  *prometheus.CounterVec
	RateLimitViolations  prometheus.Counter
	ForcedDisconnects    prometheus.Counter
	HeartbeatTimeouts    prometheus.Counter
	ClusterPublishErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formroom_connections_active",
			Help: "Current number of live connections on this instance",
		}),
		RoomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formroom_rooms_active",
			Help: "Current number of rooms with at least one local member",
		}),
		EventsInTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formroom_events_in_total",
			Help: "Total inbound client events by type",
		}, []string{"type"}),
		EventsOutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formroom_events_out_total",
			Help: "Total outbound events written to connections by type",
		}, []string{"type"}),
		EventsRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formroom_events_rejected_total",
			Help: "Total inbound events rejected by the router by reason",
		}, []string{"reason"}),
		RateLimitViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formroom_ratelimit_violations_total",
			Help: "Total events dropped by the per-connection rate limiter",
		}),
		ForcedDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formroom_forced_disconnects_total",
			Help: "Total connections closed for repeated rate limit abuse",
		}),
		HeartbeatTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formroom_heartbeat_timeouts_total",
			Help: "Total connections reaped for missing heartbeats",
		}),
		ClusterPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formroom_cluster_publish_errors_total",
			Help: "Total failed publishes to the cross-instance channel",
		}),
	}
}
