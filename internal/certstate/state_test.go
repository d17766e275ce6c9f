package certstate

import (
	"context"
	"errors"
	"math/big"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/alipaykernel/internal/cache"
	"github.com/vyrodovalexey/alipaykernel/internal/cert"
	"github.com/vyrodovalexey/alipaykernel/internal/config"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
	"github.com/vyrodovalexey/alipaykernel/test/helpers"
)

func fixtureFiles(f *helpers.Fixture) Files {
	return Files{AppCert: f.AppCertPath, GatewayCert: f.GatewayCertPath, RootCert: f.RootPath}
}

func newLoadedState(t *testing.T, f *helpers.Fixture, opts ...Option) *State {
	t.Helper()

	s := New(opts...)
	require.NoError(t, s.Setup(fixtureFiles(f)))
	return s
}

// rotatedCert issues a new gateway certificate signed by the fixture root.
func rotatedCert(t *testing.T, f *helpers.Fixture) (string, []byte, helpers.KeyPair) {
	t.Helper()

	key := helpers.Key(t, 3)
	c, pemData := f.IssueLeaf(t, big.NewInt(2022001), "gateway-rotated", &key.Private.PublicKey)
	return cert.Fingerprint(c), pemData, key
}

func staticFetcher(pemData []byte, calls *atomic.Int32) Fetcher {
	return FetcherFunc(func(_ context.Context, _ string) ([]byte, error) {
		calls.Add(1)
		return pemData, nil
	})
}

func TestState_Setup_CertMode(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)

	id := s.Snapshot()
	assert.Equal(t, cert.Fingerprint(f.AppCert), id.AppCertSN)
	assert.Equal(t, cert.Fingerprint(f.GatewayCert), id.GatewayCertSN)
	// the ECDSA root in the bundle does not count
	assert.Equal(t, cert.Fingerprint(f.RootCert), id.RootCertSN)
	assert.Equal(t, sign.KeyMaterial(f.GatewayKey.PublicRaw), id.GatewayPublicKey)
	assert.Equal(t, fixtureFiles(f), s.Files())
}

func TestState_Setup_PublicKeyMode(t *testing.T) {
	f := helpers.NewFixture(t)
	s := New()

	require.NoError(t, s.Setup(Files{GatewayCert: f.GatewayCertPath}))

	id := s.Snapshot()
	assert.Empty(t, id.AppCertSN)
	assert.Empty(t, id.RootCertSN)
	assert.Equal(t, cert.Fingerprint(f.GatewayCert), id.GatewayCertSN)
}

func TestState_Setup_FailureKeepsIdentity(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	before := s.Snapshot()

	broken := fixtureFiles(f)
	broken.GatewayCert = f.Write(t, "broken.crt", []byte("not a certificate"))
	require.Error(t, s.Setup(broken))

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, fixtureFiles(f), s.Files())
}

func TestState_Setup_RootBundle(t *testing.T) {
	f := helpers.NewFixture(t)
	s := New()

	files := fixtureFiles(f)
	files.RootCert = f.Write(t, "empty_root.crt", []byte("not a certificate"))
	err := s.Setup(files)
	require.ErrorIs(t, err, cert.ErrNoCertificate)
	assert.Equal(t, Identity{}, s.Snapshot())

	// a bundle without RSA-signed certificates loads with no root SN
	files.RootCert = f.Write(t, "ecc_root.crt", f.RootECDSAPEM)
	require.NoError(t, s.Setup(files))
	id := s.Snapshot()
	assert.Empty(t, id.RootCertSN)
	assert.Equal(t, cert.Fingerprint(f.AppCert), id.AppCertSN)
}

func TestState_Refresh_SameSN(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)

	var calls atomic.Int32
	id, err := s.Refresh(context.Background(), cert.Fingerprint(f.GatewayCert), staticFetcher(nil, &calls))
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), id)
	assert.Zero(t, calls.Load())
}

func TestState_Refresh_Commits(t *testing.T) {
	f := helpers.NewFixture(t)
	reg := prometheus.NewRegistry()
	s := newLoadedState(t, f, WithMetrics(observability.NewMetrics("test", observability.WithRegistry(reg))))
	sn, pemData, key := rotatedCert(t, f)

	var calls atomic.Int32
	id, err := s.Refresh(context.Background(), sn, staticFetcher(pemData, &calls))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, sn, id.GatewayCertSN)
	assert.Equal(t, sign.KeyMaterial(key.PublicRaw), id.GatewayPublicKey)
	assert.Equal(t, id, s.Snapshot())
	// app and root identity are untouched
	assert.Equal(t, cert.Fingerprint(f.AppCert), id.AppCertSN)

	count, err := testutil.GatherAndCount(reg, "test_cert_refresh_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestState_Refresh_SNMismatch(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	before := s.Snapshot()
	sn, _, _ := rotatedCert(t, f)

	// the gateway answers with its old certificate
	var calls atomic.Int32
	_, err := s.Refresh(context.Background(), sn, staticFetcher(f.GatewayCertPEM, &calls))
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidSign)
	assert.Equal(t, before, s.Snapshot())
}

func TestState_Refresh_Garbage(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)

	var calls atomic.Int32
	_, err := s.Refresh(context.Background(), "deadbeef", staticFetcher([]byte("garbage"), &calls))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestState_Refresh_FetchError(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	before := s.Snapshot()

	netErr := util.NewNetworkError("post", "http://gateway", errors.New("connection refused"))
	_, err := s.Refresh(context.Background(), "deadbeef", FetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, netErr
	}))
	assert.ErrorIs(t, err, util.ErrNetwork)
	assert.Equal(t, before, s.Snapshot())
}

func TestState_Refresh_InvalidArguments(t *testing.T) {
	s := New()

	_, err := s.Refresh(context.Background(), "", FetcherFunc(nil))
	assert.ErrorIs(t, err, util.ErrInvalidArgument)

	_, err = s.Refresh(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, util.ErrRuntime)
}

func TestState_Refresh_SingleFlight(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	sn, pemData, _ := rotatedCert(t, f)

	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		calls.Add(1)
		select {
		case <-release:
			return pemData, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Identity, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Refresh(context.Background(), sn, fetcher)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// give the remaining callers time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, sn, results[i].GatewayCertSN)
	}
}

func TestState_Refresh_CancelledBeforeCommit(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	before := s.Snapshot()
	sn, pemData, _ := rotatedCert(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return pemData, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctx, sn, fetcher)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("refresh did not return after cancellation")
	}

	// the flight itself observes the cancellation and never commits
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, s.Snapshot())
}

func TestState_Refresh_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	sn, pemData, key := rotatedCert(t, f)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return pemData, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.Refresh(firstCtx, sn, fetcher)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	var secondID Identity
	go func() {
		var err error
		secondID, err = s.Refresh(context.Background(), sn, fetcher)
		second <- err
	}()
	require.Eventually(t, func() bool {
		s.flightsMu.Lock()
		defer s.flightsMu.Unlock()
		fl := s.flights[sn]
		return fl != nil && fl.waiters == 2
	}, time.Second, 5*time.Millisecond)

	cancelFirst()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiting caller did not return")
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, sn, secondID.GatewayCertSN)
	assert.Equal(t, sign.KeyMaterial(key.PublicRaw), secondID.GatewayPublicKey)
	assert.Equal(t, sn, s.Snapshot().GatewayCertSN)
}

func TestState_Refresh_FlightTimeout(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f, WithRefreshTimeout(20*time.Millisecond))
	before := s.Snapshot()
	sn, _, _ := rotatedCert(t, f)

	fetcher := FetcherFunc(func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := s.Refresh(context.Background(), sn, fetcher)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, before, s.Snapshot())
}

func TestState_Refresh_SharedCache(t *testing.T) {
	f := helpers.NewFixture(t)
	sn, pemData, key := rotatedCert(t, f)

	shared, err := cache.New(&config.CertCacheConfig{Enabled: true, Type: config.CacheTypeMemory}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })

	var calls atomic.Int32
	first := newLoadedState(t, f, WithCache(shared, time.Hour))
	_, err = first.Refresh(context.Background(), sn, staticFetcher(pemData, &calls))
	require.NoError(t, err)

	stored, err := shared.Get(context.Background(), "cert:"+sn)
	require.NoError(t, err)
	assert.Equal(t, pemData, stored)

	second := newLoadedState(t, f, WithCache(shared, time.Hour))
	id, err := second.Refresh(context.Background(), sn, staticFetcher(nil, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, sign.KeyMaterial(key.PublicRaw), id.GatewayPublicKey)
}

func TestState_Refresh_BadCacheEntryIsEvicted(t *testing.T) {
	f := helpers.NewFixture(t)
	sn, _, _ := rotatedCert(t, f)

	shared, err := cache.New(&config.CertCacheConfig{Enabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })
	require.NoError(t, shared.Set(context.Background(), "cert:"+sn, f.GatewayCertPEM, time.Hour))

	s := newLoadedState(t, f, WithCache(shared, time.Hour))
	var calls atomic.Int32
	_, err = s.Refresh(context.Background(), sn, staticFetcher(nil, &calls))
	assert.ErrorIs(t, err, util.ErrInvalidSign)

	_, err = shared.Get(context.Background(), "cert:"+sn)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestState_Invalidate(t *testing.T) {
	f := helpers.NewFixture(t)
	sn, pemData, key := rotatedCert(t, f)

	shared, err := cache.New(&config.CertCacheConfig{Enabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })

	s := newLoadedState(t, f, WithCache(shared, time.Hour))
	var calls atomic.Int32
	_, err = s.Refresh(context.Background(), sn, staticFetcher(pemData, &calls))
	require.NoError(t, err)

	require.NoError(t, s.Invalidate(context.Background()))

	id := s.Snapshot()
	assert.Empty(t, id.GatewayCertSN)
	assert.Equal(t, sign.KeyMaterial(key.PublicRaw), id.GatewayPublicKey)

	_, err = shared.Get(context.Background(), "cert:"+sn)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	// the next claim downloads again
	_, err = s.Refresh(context.Background(), sn, staticFetcher(pemData, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, New().Invalidate(context.Background()))
}

func TestState_Watch(t *testing.T) {
	f := helpers.NewFixture(t)
	s := newLoadedState(t, f)
	sn, pemData, key := rotatedCert(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := s.Watch(ctx, cert.WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(f.GatewayCertPath, pemData, 0o600))

	select {
	case ev := <-w.Events():
		require.Equal(t, cert.EventReloaded, ev.Type, "event: %+v", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload event")
	}

	id := s.Snapshot()
	assert.Equal(t, sn, id.GatewayCertSN)
	assert.Equal(t, sign.KeyMaterial(key.PublicRaw), id.GatewayPublicKey)
}

func TestState_Watch_NoFiles(t *testing.T) {
	_, err := New().Watch(context.Background())
	assert.ErrorIs(t, err, util.ErrRuntime)
}

func TestFiles(t *testing.T) {
	assert.False(t, Files{AppCert: "a"}.CertMode())
	assert.True(t, Files{AppCert: "a", RootCert: "r"}.CertMode())
	assert.Equal(t, []string{"a", "r"}, Files{AppCert: "a", RootCert: "r"}.Paths())
	assert.Empty(t, Files{}.Paths())
}
