package taskname

const (
	// Reconciliation tasks
	AffiliateReconcileAll  = "affiliate:reconcile:all"
	AffiliateReconcileLink = "affiliate:reconcile:link"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
