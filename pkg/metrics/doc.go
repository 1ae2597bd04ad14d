// Package metrics defines and registers the engine's Prometheus metrics:
// account/resource counts, reconcile cycle duration and outcome, change-set
// sizes, download throughput and outcome, and Store operation latency.
// Metrics are registered at package init and exposed over HTTP via Handler.
//
// Timer is a small helper for the common start/observe pattern:
//
//	timer := metrics.NewTimer()
//	cs, err := rm.reconcile(ctx, path)
//	timer.ObserveDurationVec(metrics.ReconcileDuration, string(account))
package metrics
