// Package metric provides Prometheus metrics for the iqrfgw client.
//
// MetricsRegistry wraps a private prometheus.Registry that always carries the core
// request metrics (requests by command and outcome, request latency, in-flight requests,
// discarded envelopes by reason, transport state) plus the Go runtime collectors.
// Components register additional collectors through the MetricsRegistrar methods; duplicate
// registrations are reported as invalid errors rather than panics.
//
// Server exposes the registry over HTTP:
//
//	registry := metric.NewMetricsRegistry()
//	srv := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = srv.Start() }()
//	defer srv.Stop()
package metric
