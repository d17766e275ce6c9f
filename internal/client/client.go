package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/vyrodovalexey/alipaykernel/internal/cache"
	"github.com/vyrodovalexey/alipaykernel/internal/cert"
	"github.com/vyrodovalexey/alipaykernel/internal/certstate"
	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/keystore"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/transport"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// TimestampLayout is the layout of the timestamp system parameter.
const TimestampLayout = "2006-01-02 15:04:05"

// System parameter names.
const (
	ParamAppID            = "app_id"
	ParamMethod           = "method"
	ParamFormat           = "format"
	ParamCharset          = "charset"
	ParamSignType         = "sign_type"
	ParamTimestamp        = "timestamp"
	ParamVersion          = "version"
	ParamAppAuthToken     = "app_auth_token"
	ParamNotifyURL        = "notify_url"
	ParamAppCertSN        = "app_cert_sn"
	ParamAlipayRootCertSN = "alipay_root_cert_sn"
	ParamBizContent       = "biz_content"
	ParamSign             = "sign"
)

// Options carries the collaborators of a Client. Nil fields are built
// from the configuration.
type Options struct {
	Transport transport.Transport
	Engine    *sign.Engine
	State     *certstate.State
	KeySource keystore.Source
	Cache     cache.Cache
	Logger    observability.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer

	// Now replaces the clock used for request timestamps.
	Now func() time.Time
}

// Client signs requests, sends them to the gateway and validates the
// replies.
type Client struct {
	cfg       *config.Config
	alg       sign.Algorithm
	charset   encoding.Encoding
	location  *time.Location
	endpoint  string
	publicKey sign.KeyMaterial

	transport transport.Transport
	engine    *sign.Engine
	state     *certstate.State
	keys      keystore.Source
	validator *Validator

	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time

	ownedCache cache.Cache

	mu      sync.Mutex
	watcher *cert.Watcher
}

// New creates a Client. Defaults are applied to cfg and it is validated;
// the certificate identity is loaded unless opts.State is given.
func New(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, util.NewInvalidArgumentError("config", "configuration is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	alg, err := sign.ParseAlgorithm(cfg.SignType)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("sign_type", "unsupported sign type", err)
	}
	charset, err := sign.LookupCharset(cfg.Charset)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("charset", "unsupported charset", err)
	}
	location, err := cfg.TimeLocation()
	if err != nil {
		return nil, util.NewConfigErrorWithCause("location", "unknown time zone", err)
	}

	c := &Client{
		cfg:       cfg,
		alg:       alg,
		charset:   charset,
		location:  location,
		endpoint:  cfg.Endpoint(),
		publicKey: sign.KeyMaterial(strings.TrimSpace(cfg.AlipayPublicKey)),
		transport: opts.Transport,
		engine:    opts.Engine,
		state:     opts.State,
		keys:      opts.KeySource,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		now:       opts.Now,
	}
	if c.logger == nil {
		c.logger = observability.L()
	}
	c.logger = c.logger.With(observability.String("app_id", cfg.AppID))
	if c.tracer == nil {
		c.tracer = observability.NopTracer()
	}
	if c.now == nil {
		c.now = time.Now
	}

	if c.engine == nil {
		c.engine = sign.NewEngine(
			sign.WithCharset(cfg.Charset),
			sign.WithLogger(c.logger),
			sign.WithMetrics(c.metrics),
		)
	}
	if c.transport == nil {
		c.transport = transport.New(cfg,
			transport.WithLogger(c.logger),
			transport.WithMetrics(c.metrics),
			transport.WithTracer(c.tracer),
		)
	}
	if c.keys == nil {
		if c.keys, err = keystore.FromConfig(cfg, c.logger); err != nil {
			return nil, util.NewConfigErrorWithCause("app_private_key", "no usable private key source", err)
		}
	}
	if c.state == nil {
		if err := c.setupState(cfg, opts.Cache); err != nil {
			return nil, err
		}
	}

	c.validator = NewValidator(c.engine, c.state,
		WithInlinePublicKey(c.publicKey),
		WithFetcher(c),
		WithValidatorLogger(c.logger),
	)
	return c, nil
}

func (c *Client) setupState(cfg *config.Config, shared cache.Cache) error {
	var ttl time.Duration
	if cfg.CertCache != nil {
		ttl = cfg.CertCache.TTL.Duration()
	}
	if shared == nil {
		owned, err := cache.New(cfg.CertCache, c.logger)
		if err != nil {
			return util.NewConfigErrorWithCause("cert_cache", "failed to create certificate cache", err)
		}
		c.ownedCache = owned
		shared = owned
	}

	c.state = certstate.New(
		certstate.WithLogger(c.logger),
		certstate.WithMetrics(c.metrics),
		certstate.WithTracer(c.tracer),
		certstate.WithCache(shared, ttl),
		// room for the cache lookup plus one gateway round trip
		certstate.WithRefreshTimeout(2*cfg.Timeout.Duration()),
	)
	if err := c.state.Setup(certstate.Files{
		AppCert:     cfg.AppPublicCertFile,
		GatewayCert: cfg.AlipayPublicCertFile,
		RootCert:    cfg.AlipayRootCertFile,
	}); err != nil {
		_ = c.closeCache()
		return err
	}
	return nil
}

// Start begins watching the certificate files when watch_certs is set.
func (c *Client) Start(ctx context.Context) error {
	if !c.cfg.WatchCerts {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return nil
	}
	w, err := c.state.Watch(ctx)
	if err != nil {
		return err
	}
	c.watcher = w
	return nil
}

// Close stops the certificate watcher and releases the owned cache.
func (c *Client) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	var errs []error
	if w != nil {
		errs = append(errs, w.Close())
	}
	errs = append(errs, c.closeCache())
	return errors.Join(errs...)
}

func (c *Client) closeCache() error {
	if c.ownedCache == nil {
		return nil
	}
	err := c.ownedCache.Close()
	c.ownedCache = nil
	return err
}

// State returns the certificate state.
func (c *Client) State() *certstate.State {
	return c.state
}

// Engine returns the signature engine.
func (c *Client) Engine() *sign.Engine {
	return c.engine
}

// Endpoint returns the gateway URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SysParams returns the system parameters of a call to method.
func (c *Client) SysParams(method string) sign.Params {
	params := sign.Params{
		ParamAppID:     c.cfg.AppID,
		ParamMethod:    method,
		ParamFormat:    c.cfg.Format,
		ParamCharset:   c.cfg.Charset,
		ParamSignType:  c.alg.String(),
		ParamTimestamp: c.now().In(c.location).Format(TimestampLayout),
		ParamVersion:   c.cfg.Version,
	}
	if c.cfg.AppAuthToken != "" {
		params[ParamAppAuthToken] = c.cfg.AppAuthToken
	}
	if c.cfg.NotifyURL != "" {
		params[ParamNotifyURL] = c.cfg.NotifyURL
	}

	id := c.state.Snapshot()
	if id.AppCertSN != "" {
		params[ParamAppCertSN] = id.AppCertSN
	}
	if id.RootCertSN != "" {
		params[ParamAlipayRootCertSN] = id.RootCertSN
	}
	return params
}

// RequestURL returns the endpoint with params as its query string. Nil
// and empty values are left out.
func (c *Client) RequestURL(params sign.Params) string {
	q := toValues(params)
	if len(q) == 0 {
		return c.endpoint
	}
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return c.endpoint + sep + q.Encode()
}

// toValues converts params to url.Values, skipping nil and empty values.
func toValues(params sign.Params) url.Values {
	q := make(url.Values, len(params))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := sign.Stringify(params[k])
		if !ok || v == "" {
			continue
		}
		q.Set(k, v)
	}
	return q
}

// Post calls method with bizParams and returns the validated result.
//
// bizParams are JSON-encoded into biz_content, which is signed together
// with the system parameters. The signed parameters travel in the query
// string; the form body carries them again merged with bizParams.
func (c *Client) Post(ctx context.Context, method string, bizParams map[string]any) (result *Object, err error) {
	if strings.TrimSpace(method) == "" {
		return nil, util.NewInvalidArgumentError("method", "method is required")
	}
	if len(bizParams) == 0 {
		return nil, util.NewInvalidArgumentError("params", "business parameters are required")
	}

	start := time.Now()
	ctx = observability.ContextWithMethod(ctx, method)
	ctx, span := c.tracer.StartClientSpan(ctx, "client.Post",
		observability.AttrMethod.String(method),
		observability.AttrAppID.String(c.cfg.AppID),
	)
	logger := c.logger.WithContext(ctx)
	defer func() {
		observability.EndSpan(span, err)
		c.metrics.RecordGatewayRequest(method, err, time.Since(start))
		if err != nil {
			logger.Warn("gateway call failed",
				observability.Duration("duration", time.Since(start)),
				observability.Error(err))
			return
		}
		logger.Debug("gateway call succeeded",
			observability.Duration("duration", time.Since(start)))
	}()

	params, err := c.signedParams(ctx, method, bizParams)
	if err != nil {
		return nil, err
	}

	form := toValues(params)
	for k, v := range toValues(bizParams) {
		form[k] = v
	}

	body, err := c.transport.Post(ctx, c.RequestURL(params), form)
	if err != nil {
		return nil, err
	}

	body, err = sign.Decode(c.charset, body)
	if err != nil {
		return nil, util.NewRuntimeErrorWithCause("decode gateway response charset", err)
	}

	return c.validator.Validate(ctx, body, RequestContext{Method: method, SignType: c.alg})
}

// signedParams builds the system parameters, adds biz_content and signs
// the lot.
func (c *Client) signedParams(ctx context.Context, method string, bizParams map[string]any) (sign.Params, error) {
	biz, err := sign.MarshalPayload(bizParams)
	if err != nil {
		return nil, util.NewInvalidArgumentError("params", fmt.Sprintf("cannot encode business parameters: %v", err))
	}

	params := c.SysParams(method)
	params[ParamBizContent] = string(biz)

	key, err := c.keys.PrivateKey(ctx)
	if err != nil {
		return nil, util.NewInvalidSignErrorWithCause("load application private key", err)
	}
	sig, err := c.engine.SignParams(params, key, c.alg)
	if err != nil {
		return nil, err
	}
	params[ParamSign] = sig
	return params, nil
}

// DownloadGatewayCert fetches the PEM certificate of the gateway key
// identified by sn.
func (c *Client) DownloadGatewayCert(ctx context.Context, sn string) ([]byte, error) {
	res, err := c.Post(ctx, CertDownloadMethod, map[string]any{FieldAlipayCertSN: sn})
	if err != nil {
		return nil, err
	}

	content := res.String("alipay_cert_content")
	if content == "" {
		return nil, util.NewRuntimeError("certificate download returned no alipay_cert_content")
	}
	pemData, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, util.NewRuntimeErrorWithCause("decode alipay_cert_content", err)
	}
	return pemData, nil
}
