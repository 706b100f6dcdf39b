package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the gateway's Prometheus collectors.
type Registry struct {
	ConnectionsTotal  prometheus.Gauge
	ConnectionsPerOrg *prometheus.GaugeVec

	AdmissionRejected prometheus.Counter
	AuthRejected      prometheus.Counter
	RateLimited       prometheus.Counter
	InvalidRooms      prometheus.Counter
	HeartbeatTimeouts prometheus.Counter

	EventsConsumed      *prometheus.CounterVec
	EventsFailed        prometheus.Counter
	BroadcastsPublished *prometheus.CounterVec
	BroadcastsDelivered *prometheus.CounterVec
	BackplaneDrops      prometheus.Counter
}

// New registers all gateway collectors on reg and returns the handle set.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ConnectionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections",
			Help: "Currently admitted client connections.",
		}),
		ConnectionsPerOrg: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_connections_per_org",
			Help: "Currently admitted client connections by organization.",
		}, []string{"organization"}),
		AdmissionRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_admission_rejected_total",
			Help: "Connections rejected at the per-organization ceiling.",
		}),
		AuthRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_auth_rejected_total",
			Help: "Connections rejected by the identity verifier.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Client messages rejected by the per-connection rate limiter.",
		}),
		InvalidRooms: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_invalid_room_total",
			Help: "Subscribe requests naming an unrecognized room.",
		}),
		HeartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_heartbeat_timeouts_total",
			Help: "Connections closed for missing their pong deadline.",
		}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_consumed_total",
			Help: "Domain events consumed from the bus, by type.",
		}, []string{"type"}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_failed_total",
			Help: "Domain events whose dispatch failed and were requeued.",
		}),
		BroadcastsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcasts_published_total",
			Help: "Broadcasts handed to the backplane, by channel.",
		}, []string{"channel"}),
		BroadcastsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcasts_delivered_total",
			Help: "Broadcast frames written to local clients, by channel.",
		}, []string{"channel"}),
		BackplaneDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_backplane_drops_total",
			Help: "Broadcasts that degraded to local-only delivery.",
		}),
	}
}

// NewNop returns a registry backed by a private Prometheus registry, for tests.
func NewNop() *Registry {
	return New(prometheus.NewRegistry())
}
