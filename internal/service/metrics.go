package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_notifications_routed_total",
		Help: "Notification records created by the router.",
	}, []string{"type", "channel"})

	routeSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_route_skipped_total",
		Help: "Channels skipped while routing an event.",
	}, []string{"channel", "reason"})

	deliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_delivery_outcomes_total",
		Help: "Delivery attempts by channel and resulting status.",
	}, []string{"channel", "status"})

	deliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifyd_delivery_duration_seconds",
		Help:    "Duration of channel sends.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	asyncInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifyd_async_sends_in_flight",
		Help: "Async channel sends not yet completed.",
	})

	retrySweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_retry_sweeps_total",
		Help: "Completed retry sweeps.",
	})

	retryRedispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_retry_redispatched_total",
		Help: "Records re-dispatched by the retry sweep.",
	})

	bulkRecipients = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_bulk_recipients_total",
		Help: "Bulk recipients by result.",
	}, []string{"result"})
)
