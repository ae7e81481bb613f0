package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifyd_push_connections",
		Help: "Live push connections by kind.",
	}, []string{"kind"})

	connectionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_push_connections_closed_total",
		Help: "Push connections removed from the registry, by reason.",
	}, []string{"reason"})

	eventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_push_events_sent_total",
		Help: "Events queued to push connections.",
	}, []string{"event"})

	heartbeatSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_push_heartbeat_sweeps_total",
		Help: "Completed heartbeat sweeps.",
	})
)

const (
	kindUser  = "user"
	kindTopic = "topic"

	reasonReplaced     = "replaced"
	reasonCompleted    = "completed"
	reasonWriteFailed  = "write_failed"
	reasonHeartbeat    = "heartbeat_failed"
	reasonDisconnected = "disconnected"
	reasonShutdown     = "shutdown"
)
