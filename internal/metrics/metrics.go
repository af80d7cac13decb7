package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Thread synchronizer metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qlchat_messages_sent_total",
			Help: "Messages accepted by the server",
		},
	)

	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qlchat_messages_received_total",
			Help: "Messages appended from the live channel",
		},
	)

	DuplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qlchat_duplicates_suppressed_total",
			Help: "Redelivered or echoed messages dropped by id",
		},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qlchat_send_failures_total",
			Help: "Send attempts that did not reach the server",
		},
		[]string{"reason"}, // "validation" or "transient"
	)

	HistoryRefetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qlchat_history_refetches_total",
			Help: "Full history fetches beyond the initial load",
		},
		[]string{"trigger"}, // "reconnect" or "membership"
	)

	// Transport metrics
	SubscriptionReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qlchat_subscription_reconnects_total",
			Help: "Live channel re-establishments after a drop",
		},
	)
)
