// Package metrics collects per-unit outcomes during a dispatch run.
//
// The central [Collector] aggregates latency and outcome data from all unit
// workers:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.RecordUnit(latency, ok, err)
//
//	stats := collector.Stats(collector.Elapsed())
//
// Latencies are tracked in an HDR histogram (1µs to 60s, 3 significant
// figures). Failures are grouped by a friendly error label; units that finish
// without an error but are not accepted are grouped under [RejectedError].
//
// The Collector is safe for concurrent use.
package metrics
