package feed

import "github.com/prometheus/client_golang/prometheus"

var (
	openSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "welfareschool",
			Subsystem: "feed",
			Name:      "open_subscriptions",
			Help:      "Number of live queries currently registered, by collection.",
		},
		[]string{"collection"},
	)
	deliveredSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "welfareschool",
			Subsystem: "feed",
			Name:      "delivered_snapshots_total",
			Help:      "Number of snapshots handed to subscribers, by collection.",
		},
		[]string{"collection"},
	)
)

func init() {
	prometheus.MustRegister(openSubscriptions, deliveredSnapshots)
}
