package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storyroom_ws_active_connections",
		Help: "Number of open websocket connections on this instance.",
	})

	handshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyroom_ws_handshakes_total",
			Help: "Total number of websocket handshakes by status.",
		},
		[]string{"status"},
	)

	inboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyroom_ws_inbound_events_total",
			Help: "Total number of inbound websocket events by action and result code.",
		},
		[]string{"action", "code"},
	)
)
