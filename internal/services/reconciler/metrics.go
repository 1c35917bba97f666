package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpnshop",
		Subsystem: "reconciler",
		Name:      "intents_total",
		Help:      "Processed provisioning intents by kind and result.",
	}, []string{"kind", "result"})

	subscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vpnshop",
		Subsystem: "reconciler",
		Name:      "subscriptions_expired_total",
		Help:      "Subscriptions transitioned to expired by the reconciler.",
	})

	notificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpnshop",
		Subsystem: "reconciler",
		Name:      "notifications_published_total",
		Help:      "Expiry notifications published to the broker.",
	}, []string{"type"})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vpnshop",
		Subsystem: "reconciler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full reconciliation tick.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
