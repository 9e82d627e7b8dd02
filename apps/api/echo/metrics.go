package echoapi

import "github.com/prometheus/client_golang/prometheus"

var (
	liveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "welfareschool",
		Subsystem: "api",
		Name:      "live_connections",
		Help:      "Number of open live websocket connections.",
	})
	liveFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "welfareschool",
			Subsystem: "api",
			Name:      "live_frames_total",
			Help:      "Number of frames written to live connections, by frame type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(liveConnections, liveFrames)
}
