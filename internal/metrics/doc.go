// Package metrics collects proxy metrics and exposes them to Prometheus.
//
// Components emit events on a buffered channel with non-blocking semantics so
// the request path never waits on metrics:
//   - Upstream selections and connect failures during failover
//   - Requests forwarded and responses relayed, with status and latency
//   - Error responses generated by the proxy (400, 413, 429, 502, 503)
//   - Health transitions and the size of the live set
//
// A single goroutine started by Collector.Start applies the events to
// Prometheus collectors held in a private registry.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseRelayed,
//		Upstream:   "127.0.0.1:8081",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	mux.Handle("/metrics", collector.Handler())
//
// Pending events are drained when the context is cancelled.
package metrics
