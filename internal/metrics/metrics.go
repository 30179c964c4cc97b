// Package metrics holds the process Prometheus collectors. They register on
// the default registry and are served by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redemption outcomes.
const (
	ResultRedeemed        = "redeemed"
	ResultNotFound        = "not_found"
	ResultAlreadyRedeemed = "already_redeemed"
	ResultInvalid         = "invalid"
	ResultError           = "error"
)

var (
	VouchersIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_issued_total",
		Help: "Vouchers issued with a committed campaign.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_redemptions_total",
		Help: "Redemption attempts by result.",
	}, []string{"result"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_dispatch_failures_total",
		Help: "Notifications that could not be handed to a transport.",
	}, []string{"template"})

	LedgerCredits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_credits_minor_units_total",
		Help: "Minor units credited to ledger accounts.",
	})
)
