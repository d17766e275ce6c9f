package certstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/alipaykernel/internal/cache"
	"github.com/vyrodovalexey/alipaykernel/internal/cert"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// Fingerprint kinds published as metrics.
const (
	KindApp     = "app"
	KindGateway = "gateway"
	KindRoot    = "root"
)

const cacheKeyPrefix = "cert:"

// DefaultRefreshTimeout bounds a shared certificate download.
const DefaultRefreshTimeout = 30 * time.Second

// Identity is the certificate identity the kernel signs and verifies with.
type Identity struct {
	AppCertSN        string
	GatewayCertSN    string
	RootCertSN       string
	GatewayPublicKey sign.KeyMaterial
}

// Files names the certificate files an Identity is loaded from.
type Files struct {
	AppCert     string
	GatewayCert string
	RootCert    string
}

// CertMode reports whether both the application certificate and the root
// bundle are configured.
func (f Files) CertMode() bool {
	return f.AppCert != "" && f.RootCert != ""
}

// Paths returns the configured file paths.
func (f Files) Paths() []string {
	var paths []string
	for _, p := range []string{f.AppCert, f.GatewayCert, f.RootCert} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Fetcher downloads the PEM certificate the gateway identifies by sn.
type Fetcher interface {
	DownloadGatewayCert(ctx context.Context, sn string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sn string) ([]byte, error)

// DownloadGatewayCert calls f.
func (f FetcherFunc) DownloadGatewayCert(ctx context.Context, sn string) ([]byte, error) {
	return f(ctx, sn)
}

// State holds the cached certificate identity. Reads take a snapshot under
// a read lock; Setup and Refresh are the only writers.
type State struct {
	logger   observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration

	group     singleflight.Group
	flightsMu sync.Mutex
	flights   map[string]*flight
	flightSeq uint64

	mu       sync.RWMutex
	files    Files
	identity Identity
}

// Option is a functional option for configuring State.
type Option func(*State)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *State) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer used for refresh spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *State) {
		s.tracer = tracer
	}
}

// WithCache shares downloaded certificates through c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *State) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithRefreshTimeout bounds each shared certificate download.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(s *State) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// New creates an empty State.
func New(opts ...Option) *State {
	s := &State{
		logger: observability.NopLogger(),
		tracer:  observability.NopTracer(),
		timeout: DefaultRefreshTimeout,
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache, _ = cache.New(nil, s.logger)
	}
	s.logger = s.logger.With(observability.String("component", "certstate"))
	return s
}

// Setup loads the identity from files and replaces the current one. The
// application and root SNs are only derived in certificate mode. Nothing
// is committed if any file fails to load.
func (s *State) Setup(files Files) error {
	var id Identity

	if files.CertMode() {
		app, err := cert.LoadIdentity(files.AppCert)
		if err != nil {
			return fmt.Errorf("load application certificate: %w", err)
		}
		id.AppCertSN = app.SN

		rootSN, ok, err := cert.LoadChainSN(files.RootCert)
		if err != nil {
			return fmt.Errorf("load root certificate: %w", err)
		}
		if !ok {
			s.logger.Warn("root bundle holds no RSA certificate",
				observability.String("path", files.RootCert))
		}
		id.RootCertSN = rootSN
	}

	if files.GatewayCert != "" {
		gw, err := cert.LoadIdentity(files.GatewayCert)
		if err != nil {
			return fmt.Errorf("load gateway certificate: %w", err)
		}
		id.GatewayCertSN = gw.SN
		id.GatewayPublicKey = gw.PublicKey
	}

	s.mu.Lock()
	s.files = files
	s.identity = id
	s.mu.Unlock()

	s.metrics.SetCertFingerprint(KindApp, id.AppCertSN)
	s.metrics.SetCertFingerprint(KindGateway, id.GatewayCertSN)
	s.metrics.SetCertFingerprint(KindRoot, id.RootCertSN)

	s.logger.Info("certificate identity loaded",
		observability.String("app_cert_sn", id.AppCertSN),
		observability.String("gateway_cert_sn", id.GatewayCertSN),
		observability.String("root_cert_sn", id.RootCertSN),
	)
	return nil
}

// Reload re-reads the files given to the last Setup.
func (s *State) Reload() error {
	s.mu.RLock()
	files := s.files
	s.mu.RUnlock()
	return s.Setup(files)
}

// Snapshot returns a copy of the current identity.
func (s *State) Snapshot() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Files returns the files given to the last Setup.
func (s *State) Files() Files {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files
}

// Refresh makes the gateway certificate identified by claimedSN current.
//
// Concurrent calls for the same SN share a single download. The
// downloaded certificate is committed only if its own SN equals
// claimedSN. A caller whose context ends returns its context error
// without affecting the other waiters; the download is cancelled, and
// nothing is committed, only once every waiter has gone.
func (s *State) Refresh(ctx context.Context, claimedSN string, fetcher Fetcher) (Identity, error) {
	if claimedSN == "" {
		return Identity{}, util.NewInvalidArgumentError("alipay_cert_sn", "claimed certificate SN is empty")
	}
	if fetcher == nil {
		return Identity{}, util.NewRuntimeError("no certificate fetcher configured")
	}

	if id := s.Snapshot(); id.GatewayCertSN == claimedSN {
		return id, nil
	}

	fl := s.joinFlight(ctx, claimedSN)
	defer s.leaveFlight(claimedSN, fl)

	ch := s.group.DoChan(fl.key, func() (interface{}, error) {
		return s.refresh(fl.ctx, claimedSN, fetcher)
	})

	select {
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Identity{}, res.Err
		}
		return res.Val.(Identity), nil
	}
}

// flight is the download shared by the callers refreshing one SN. Its
// context outlives any single caller and ends when the last one leaves.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *State) joinFlight(ctx context.Context, sn string) *flight {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()

	fl, ok := s.flights[sn]
	if !ok {
		s.flightSeq++
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		fl = &flight{
			key:    fmt.Sprintf("%s#%d", sn, s.flightSeq),
			ctx:    fctx,
			cancel: cancel,
		}
		s.flights[sn] = fl
	}
	fl.waiters++
	return fl
}

func (s *State) leaveFlight(sn string, fl *flight) {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if s.flights[sn] == fl {
		delete(s.flights, sn)
	}
}

func (s *State) refresh(ctx context.Context, claimedSN string, fetcher Fetcher) (id Identity, err error) {
	ctx, span := s.tracer.StartClientSpan(ctx, "certstate.Refresh",
		observability.AttrCertSN.String(claimedSN))
	defer func() {
		observability.EndSpan(span, err)
		s.metrics.RecordCertRefresh(err)
	}()

	// another flight may have committed while this one was queued
	if cur := s.Snapshot(); cur.GatewayCertSN == claimedSN {
		return cur, nil
	}

	certPEM, fromCache := s.cached(ctx, claimedSN)
	if !fromCache {
		certPEM, err = fetcher.DownloadGatewayCert(ctx, claimedSN)
		if err != nil {
			s.logger.Error("gateway certificate download failed",
				observability.String("cert_sn", claimedSN),
				observability.Error(err))
			return Identity{}, err
		}
	}

	key, err := s.checkDownloaded(certPEM, claimedSN)
	if err != nil {
		if fromCache {
			_ = s.cache.Delete(ctx, cacheKeyPrefix+claimedSN)
		}
		return Identity{}, err
	}

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	s.identity.GatewayCertSN = claimedSN
	s.identity.GatewayPublicKey = key
	id = s.identity
	s.mu.Unlock()

	s.metrics.SetCertFingerprint(KindGateway, claimedSN)
	s.logger.Info("gateway certificate refreshed",
		observability.String("cert_sn", claimedSN),
		observability.Bool("from_cache", fromCache))

	if !fromCache {
		if err := s.cache.Set(ctx, cacheKeyPrefix+claimedSN, certPEM, s.cacheTTL); err != nil &&
			!errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("failed to cache gateway certificate",
				observability.String("cert_sn", claimedSN),
				observability.Error(err))
		}
	}
	return id, nil
}

func (s *State) cached(ctx context.Context, sn string) ([]byte, bool) {
	if cache.IsDisabled(s.cache) {
		return nil, false
	}
	data, err := s.cache.Get(ctx, cacheKeyPrefix+sn)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("certificate cache lookup failed",
				observability.String("cert_sn", sn),
				observability.Error(err))
		}
		return nil, false
	}
	return data, true
}

// checkDownloaded derives the public key of certPEM after confirming it
// is the certificate the gateway claimed.
func (s *State) checkDownloaded(certPEM []byte, claimedSN string) (sign.KeyMaterial, error) {
	c, err := cert.ParseCertificate(certPEM)
	if err != nil {
		return "", util.NewInvalidSignErrorWithCause("parse downloaded gateway certificate", err)
	}
	if got := cert.Fingerprint(c); got != claimedSN {
		return "", util.NewInvalidSignError(
			fmt.Sprintf("downloaded gateway certificate SN %s does not match claimed SN %s", got, claimedSN))
	}
	key, err := cert.PublicKey(c)
	if err != nil {
		return "", util.NewInvalidSignErrorWithCause("extract downloaded gateway public key", err)
	}
	return key, nil
}

// Invalidate forgets the current gateway SN and its cached certificate so
// that the next claimed SN triggers a fresh download. The public key is
// kept for responses that carry no SN.
func (s *State) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	sn := s.identity.GatewayCertSN
	s.identity.GatewayCertSN = ""
	s.mu.Unlock()

	s.metrics.SetCertFingerprint(KindGateway, "")
	if sn == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+sn); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		return fmt.Errorf("evict cached certificate %s: %w", sn, err)
	}
	return nil
}

// Watch reloads the identity whenever one of the configured files
// changes. The returned watcher is already started.
func (s *State) Watch(ctx context.Context, opts ...cert.WatcherOption) (*cert.Watcher, error) {
	paths := s.Files().Paths()
	if len(paths) == 0 {
		return nil, util.NewRuntimeError("no certificate files to watch")
	}

	opts = append([]cert.WatcherOption{cert.WithWatcherLogger(s.logger)}, opts...)
	w := cert.NewWatcher(paths, func(_ context.Context, _ string) error {
		return s.Reload()
	}, opts...)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
