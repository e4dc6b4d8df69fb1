package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsRecorded counts payments applied to contracts
	PaymentsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Payments applied to contracts",
		},
		[]string{"kind"},
	)

	// ContractsSkipped counts contracts left out of an aggregation pass
	ContractsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_contracts_skipped_total",
			Help: "Contracts excluded from aggregation because they could not be read or resolved",
		},
		[]string{"reason"},
	)

	// RemindersSent counts reminder delivery attempts
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_reminders_sent_total",
			Help: "Collection reminders handed to the message transport",
		},
		[]string{"status"},
	)

	// WriteConflicts counts optimistic-lock retries on contract updates
	WriteConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_write_conflicts_total",
			Help: "Contract updates retried after a concurrent write",
		},
	)
)
