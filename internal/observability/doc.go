// Package observability provides logging, metrics, and tracing
// for the signing kernel.
//
// # Logging
//
// The Logger interface wraps zap. File output is rotated with lumberjack:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/alipaykernel.log",
//	})
//
// WithContext adds the request ID, gateway method, trace ID and span ID
// stored in the context.
//
// # Metrics
//
// Prometheus counters for signing, verification, gateway calls and
// certificate refreshes live on a private registry:
//
//	metrics := observability.NewMetrics("alipaykernel")
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry spans wrap gateway calls and certificate refreshes.
// Spans are exported over OTLP gRPC when an endpoint is configured.
package observability
