package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// Header names.
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// MaxResponseSize bounds the gateway response body.
const MaxResponseSize = 10 << 20

const breakerName = "gateway"

// Transport posts a form to the gateway and returns the raw reply body.
type Transport interface {
	Post(ctx context.Context, endpoint string, form url.Values) ([]byte, error)
}

// HTTPTransport is the default Transport.
type HTTPTransport struct {
	client  *http.Client
	charset string
	timeout time.Duration

	breaker *CircuitBreaker
	limiter *RateLimiter

	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(t *HTTPTransport) {
		t.metrics = metrics
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(t *HTTPTransport) {
		t.tracer = tracer
	}
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// New creates a transport from the kernel configuration. Rate limiting
// and circuit breaking are only installed when enabled.
func New(cfg *config.Config, opts ...Option) *HTTPTransport {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	t := &HTTPTransport{
		charset: cfg.Charset,
		timeout: cfg.Timeout.Duration(),
		logger:  observability.NopLogger(),
		tracer:  observability.NopTracer(),
	}
	if t.charset == "" {
		t.charset = config.DefaultCharset
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		t.client = newHTTPClient(DefaultPoolConfig())
	}
	t.logger = t.logger.With(observability.String("component", "transport"))

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		t.limiter = NewRateLimiter(cfg.RateLimit,
			WithRateLimiterLogger(t.logger),
			WithRateLimiterMetrics(t.metrics),
		)
	}

	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.Enabled {
		metrics := t.metrics
		t.breaker = NewCircuitBreaker(breakerName, cfg.CircuitBreaker,
			WithCircuitBreakerLogger(t.logger),
			WithCircuitBreakerStateCallback(func(name string, state int) {
				metrics.SetCircuitBreakerState(name, state)
			}),
		)
		t.metrics.SetCircuitBreakerState(breakerName, 0)
	}

	return t
}

// Breaker returns the circuit breaker, or nil when disabled.
func (t *HTTPTransport) Breaker() *CircuitBreaker {
	return t.breaker
}

// Post sends form as an urlencoded body to endpoint. Any failure to
// obtain a 2xx reply is returned as a *util.NetworkError.
func (t *HTTPTransport) Post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}

	target := redact(endpoint)
	ctx, span := t.tracer.StartClientSpan(ctx, "gateway.post",
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.full", target),
		observability.AttrMethod.String(form.Get("method")),
	)

	body, err := t.post(ctx, endpoint, target, form, requestID)
	observability.EndSpan(span, err)
	return body, err
}

func (t *HTTPTransport) post(
	ctx context.Context, endpoint, target string, form url.Values, requestID string,
) ([]byte, error) {
	logger := t.logger.WithContext(ctx)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, util.NewNetworkError("rate limit", target, err)
		}
	}

	send := func() ([]byte, error) {
		return t.send(ctx, endpoint, target, form, requestID)
	}

	start := time.Now()
	var (
		body []byte
		err  error
	)
	if t.breaker != nil {
		body, err = t.breaker.Execute(send)
		if errors.Is(err, ErrCircuitOpen) {
			err = util.NewNetworkError("post", target, err)
		}
	} else {
		body, err = send()
	}

	if err != nil {
		logger.Warn("gateway request failed",
			observability.String("url", target),
			observability.Duration("duration", time.Since(start)),
			observability.Error(err),
		)
		return nil, err
	}

	logger.Debug("gateway request completed",
		observability.String("url", target),
		observability.Int("bytes", len(body)),
		observability.Duration("duration", time.Since(start)),
	)
	return body, nil
}

func (t *HTTPTransport) send(
	ctx context.Context, endpoint, target string, form url.Values, requestID string,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, util.NewNetworkError("build request", target, err)
	}
	req.Header.Set(HeaderContentType, "application/x-www-form-urlencoded;charset="+t.charset)
	req.Header.Set(HeaderRequestID, requestID)
	observability.InjectTraceContext(ctx, req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, util.NewNetworkError("post", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil, util.NewNetworkStatusError("post", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, util.NewNetworkError("read response", target, err)
	}
	if len(body) > MaxResponseSize {
		return nil, util.NewNetworkError("read response", target,
			fmt.Errorf("response exceeds %d bytes", MaxResponseSize))
	}
	return body, nil
}

// redact strips the query string, which carries the request signature
// and the app auth token, from URLs that end up in logs and errors.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
