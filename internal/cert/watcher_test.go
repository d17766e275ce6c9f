package cert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return Event{}
	}
}

func TestEventType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "reloaded", EventReloaded.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "alipayCertPublicKey_RSA2.crt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	var calls atomic.Int32
	w := NewWatcher([]string{path, ""}, func(_ context.Context, changed string) error {
		calls.Add(1)
		assert.Equal(t, path, changed)
		return nil
	}, WithDebounceDelay(20*time.Millisecond))

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second start is a no-op")
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))

	ev := waitEvent(t, w.Events())
	assert.Equal(t, EventReloaded, ev.Type)
	assert.Equal(t, path, ev.Path)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	watched := filepath.Join(dir, "root.crt")
	require.NoError(t, os.WriteFile(watched, []byte("root"), 0o600))

	var calls atomic.Int32
	w := NewWatcher([]string{watched}, func(context.Context, string) error {
		calls.Add(1)
		return nil
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_ReportsReloadError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.crt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	reloadErr := errors.New("bad certificate")
	w := NewWatcher([]string{path}, func(context.Context, string) error {
		return reloadErr
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))

	ev := waitEvent(t, w.Events())
	assert.Equal(t, EventError, ev.Type)
	assert.ErrorIs(t, ev.Error, reloadErr)
}

func TestWatcher_Close(t *testing.T) {
	t.Parallel()

	w := NewWatcher([]string{filepath.Join(t.TempDir(), "a.crt")}, func(context.Context, string) error { return nil })
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	_, open := <-w.Events()
	assert.False(t, open)
	assert.ErrorIs(t, w.Start(context.Background()), ErrWatcherClosed)
}

func TestWatcher_CloseWithoutStart(t *testing.T) {
	t.Parallel()

	w := NewWatcher(nil, func(context.Context, string) error { return nil })
	assert.NoError(t, w.Close())
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher([]string{filepath.Join(t.TempDir(), "a.crt")}, func(context.Context, string) error { return nil })
	require.NoError(t, w.Start(ctx))
	cancel()

	done := make(chan error, 1)
	go func() { done <- w.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return after context cancellation")
	}
}

func TestWatcher_StartFailsForMissingDirectory(t *testing.T) {
	t.Parallel()

	w := NewWatcher([]string{filepath.Join(t.TempDir(), "missing", "a.crt")}, func(context.Context, string) error { return nil })
	err := w.Start(context.Background())
	var ce *CertificateError
	assert.ErrorAs(t, err, &ce)
}
