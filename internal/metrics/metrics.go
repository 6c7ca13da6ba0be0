package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks total contract events processed by type
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_events_processed_total",
			Help: "Total number of contract events processed",
		},
		[]string{"event_type"},
	)

	// EventsSkipped tracks events dropped as unparseable or replayed
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_events_skipped_total",
			Help: "Total number of contract events skipped",
		},
		[]string{"reason"},
	)

	// PollCycleErrors tracks failed poll cycles
	PollCycleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_poll_cycle_errors_total",
			Help: "Total number of failed poll cycles",
		},
	)

	// LastProcessedLedger tracks the watcher cursor position
	LastProcessedLedger = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_last_processed_ledger",
			Help: "Last ledger sequence fully processed by the watcher",
		},
	)

	// ChainLatestLedger tracks the latest ledger reported by the event source
	ChainLatestLedger = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_chain_latest_ledger",
			Help: "Latest ledger sequence reported by the event source",
		},
	)

	// WebhookDeliveries tracks outbound webhook deliveries by outcome
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"outcome"},
	)

	// BatchQueries tracks batch metadata lookups
	BatchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_batch_queries_total",
			Help: "Total number of batch metadata queries served",
		},
	)

	// DBConnectionPoolUsage tracks connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
