// Package metrics collects per-request outcomes for a relayload run and turns
// them into a terminal summary.
//
// # Collector
//
// The [Collector] is the run's aggregator. Every in-flight request records
// exactly one [Outcome] into it:
//
//	collector := metrics.NewCollector()
//	collector.Record(metrics.Outcome{
//		Sequence:   1,
//		StatusCode: 200,
//		Success:    true,
//		Duration:   42 * time.Millisecond,
//	})
//
// Once the run has terminated, [Collector.Summarize] computes the [Summary].
// The first call seals the collector; later calls return the same snapshot and
// later Record calls are dropped, so a summary never reflects a partial run.
//
// # Snapshots
//
// [Collector.Snapshot] returns cheap running counters for progress output and
// the live dashboard while the run is still in progress.
//
// # Failure classes
//
// Transport errors are reduced to a small set of [ErrorClass] labels by
// [ClassifyError]: timeout, connection-refused, connection-reset, dns,
// canceled and other.
//
// # Thread Safety
//
// Record, Snapshot and Summarize are safe to call from multiple goroutines.
// The outcome collection is append-only.
package metrics
