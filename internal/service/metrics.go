package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyroom_broadcast_deliveries_total",
			Help: "Total number of payload deliveries attempted by the fanout, by result.",
		},
		[]string{"result"},
	)

	achievementAwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyroom_achievement_awards_total",
			Help: "Total number of achievement award attempts, by result.",
		},
		[]string{"result"},
	)

	consensusResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyroom_consensus_resolutions_total",
			Help: "Total number of unanimous decisions reached, by round.",
		},
		[]string{"round"},
	)

	sessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyroom_sessions_started_total",
		Help: "Total number of rooms converted into sessions.",
	})

	sessionsResumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyroom_sessions_resumed_total",
		Help: "Total number of players that rejoined a running session.",
	})

	sessionExpiryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyroom_session_expiry_failures_total",
		Help: "Total number of ended sessions whose expiry could not be scheduled.",
	})
)
