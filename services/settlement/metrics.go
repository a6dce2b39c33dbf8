package settlement

import "github.com/prometheus/client_golang/prometheus"

const (
	resultCompleted      = "completed"
	resultAlreadySettled = "already_settled"
	resultRejected       = "rejected"
	resultFailed         = "failed"
)

var (
	settlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_attempts_total",
		Help: "Payment settlement attempts by result.",
	}, []string{"result"})

	commissionMinorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_commission_minor_total",
		Help: "Commission credited to affiliates, in minor currency units.",
	})

	settlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Time spent settling a payment confirmation.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(settlementsTotal, commissionMinorTotal, settlementDuration)
}
