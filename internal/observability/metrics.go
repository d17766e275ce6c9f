package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metric namespace used when none is given.
const DefaultNamespace = "alipaykernel"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Metrics holds all Prometheus metrics for the signing kernel.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	signTotal       *prometheus.CounterVec
	verifyTotal     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	certRefresh     *prometheus.CounterVec
	certInfo        *prometheus.GaugeVec
	circuitBreaker  *prometheus.GaugeVec
	rateLimitWaits  prometheus.Histogram
	buildInfo       *prometheus.GaugeVec
	registry        *prometheus.Registry
}

// MetricsOption configures Metrics.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	registry       *prometheus.Registry
	runtimeMetrics bool
}

// WithRegistry registers the collectors on an existing registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(o *metricsOptions) {
		o.registry = registry
	}
}

// WithRuntimeMetrics adds the Go and process collectors.
func WithRuntimeMetrics() MetricsOption {
	return func(o *metricsOptions) {
		o.runtimeMetrics = true
	}
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	o := &metricsOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: o.registry,
	}

	m.signTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_total",
			Help:      "Total number of signatures produced",
		},
		[]string{"sign_type", "result"},
	)

	m.verifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Total number of signature verifications",
		},
		[]string{"sign_type", "result"},
	)

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of gateway calls by method and outcome",
		},
		[]string{"method", "result"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway call duration in seconds",
			Buckets: []float64{
				.01, .025, .05, .1, .25,
				.5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method"},
	)

	m.certRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cert_refresh_total",
			Help: "Total number of gateway certificate " +
				"refresh attempts",
		},
		[]string{"result"},
	)

	m.certInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_fingerprint_info",
			Help: "Currently cached certificate fingerprints " +
				"(value is always 1)",
		},
		[]string{"kind", "sn"},
	)

	m.circuitBreaker = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help: "Circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	m.rateLimitWaits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the outbound rate limiter",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.registry.MustRegister(
		m.signTotal,
		m.verifyTotal,
		m.requestsTotal,
		m.requestDuration,
		m.certRefresh,
		m.certInfo,
		m.circuitBreaker,
		m.rateLimitWaits,
		m.buildInfo,
	)

	if o.runtimeMetrics {
		m.registry.MustRegister(collectors.NewGoCollector())
		m.registry.MustRegister(
			collectors.NewProcessCollector(
				collectors.ProcessCollectorOpts{},
			),
		)
	}

	return m
}

// RecordSign records a signing attempt.
func (m *Metrics) RecordSign(signType string, err error) {
	if m == nil {
		return
	}
	m.signTotal.WithLabelValues(signType, resultOf(err)).Inc()
}

// RecordVerify records a verification outcome. A mismatch is a
// failure; an error before comparison (e.g. missing key) is an error.
func (m *Metrics) RecordVerify(signType string, ok bool, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	switch {
	case err != nil:
		result = ResultError
	case !ok:
		result = ResultFailure
	}
	m.verifyTotal.WithLabelValues(signType, result).Inc()
}

// RecordGatewayRequest records a completed gateway call.
func (m *Metrics) RecordGatewayRequest(method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, resultOf(err)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCertRefresh records a gateway certificate refresh attempt.
func (m *Metrics) RecordCertRefresh(err error) {
	if m == nil {
		return
	}
	m.certRefresh.WithLabelValues(resultOf(err)).Inc()
}

// SetCertFingerprint publishes the cached fingerprint for kind
// ("app", "gateway" or "root"), replacing any previous value.
func (m *Metrics) SetCertFingerprint(kind, sn string) {
	if m == nil {
		return
	}
	m.certInfo.DeletePartialMatch(prometheus.Labels{"kind": kind})
	if sn != "" {
		m.certInfo.WithLabelValues(kind, sn).Set(1)
	}
}

// SetCircuitBreakerState sets the circuit breaker state.
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.circuitBreaker.WithLabelValues(name).Set(float64(state))
}

// ObserveRateLimitWait records time spent blocked on the rate limiter.
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.Observe(d.Seconds())
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
