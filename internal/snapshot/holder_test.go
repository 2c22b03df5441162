package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	mu    sync.Mutex
	snaps []*domain.Snapshot
	err   error
	calls int
}

func (l *stubLoader) Snapshot(_ context.Context) (*domain.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if len(l.snaps) == 0 {
		return domain.NewSnapshot(nil, nil), nil
	}
	s := l.snaps[0]
	if len(l.snaps) > 1 {
		l.snaps = l.snaps[1:]
	}
	return s, nil
}

func (l *stubLoader) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *stubLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newHolder(loader Loader) (*Holder, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewHolder(loader, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func rows(n int) []domain.Observation {
	out := make([]domain.Observation, n)
	for i := range out {
		out[i] = domain.Observation{CountryISO3: "DEU", Country: "Germany", Date: "2023", Value: float64(i)}
	}
	return out
}

func TestHolder_NotReadyBeforeLoad(t *testing.T) {
	h, _ := newHolder(&stubLoader{})

	assert.Nil(t, h.Current())
	require.ErrorIs(t, h.CheckReadiness(context.Background()), ErrNotLoaded)
}

func TestHolder_Reload(t *testing.T) {
	ingested := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	loader := &stubLoader{snaps: []*domain.Snapshot{
		domain.NewSnapshot(rows(3), &domain.Metadata{IngestionTime: ingested}),
	}}
	h, m := newHolder(loader)

	require.NoError(t, h.Reload(context.Background()))
	require.NoError(t, h.CheckReadiness(context.Background()))

	snap := h.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Len())
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.SnapshotRows), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SnapshotReloads.WithLabelValues("success")), 0)
}

func TestHolder_EmptyStoreIsReady(t *testing.T) {
	h, _ := newHolder(&stubLoader{})

	require.NoError(t, h.Reload(context.Background()))
	require.NoError(t, h.CheckReadiness(context.Background()))
	assert.Equal(t, 0, h.Current().Len())
}

func TestHolder_FailedReloadKeepsPrevious(t *testing.T) {
	loader := &stubLoader{snaps: []*domain.Snapshot{domain.NewSnapshot(rows(2), nil)}}
	h, m := newHolder(loader)
	require.NoError(t, h.Reload(context.Background()))
	before := h.Current()

	loader.setErr(errors.New("database is locked"))
	err := h.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload snapshot")

	assert.Same(t, before, h.Current())
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.SnapshotRows), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SnapshotReloads.WithLabelValues("error")), 0)
}

func TestHolder_SwapsSnapshot(t *testing.T) {
	loader := &stubLoader{snaps: []*domain.Snapshot{
		domain.NewSnapshot(rows(1), nil),
		domain.NewSnapshot(rows(5), nil),
	}}
	h, _ := newHolder(loader)

	require.NoError(t, h.Reload(context.Background()))
	old := h.Current()
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, 1, old.Len(), "readers holding the old snapshot are unaffected")
	assert.Equal(t, 5, h.Current().Len())
}

func TestHolder_RunScheduleInvalidExpression(t *testing.T) {
	h, _ := newHolder(&stubLoader{})

	err := h.RunSchedule(context.Background(), "not a schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule snapshot refresh")
}

func TestHolder_RunSchedule(t *testing.T) {
	loader := &stubLoader{}
	h, _ := newHolder(loader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunSchedule(ctx, "@every 1s") }()

	require.Eventually(t, func() bool { return loader.callCount() > 0 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunSchedule did not return after cancel")
	}
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trade_data.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o600))

	loader := &stubLoader{}
	h, _ := newHolder(loader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx, dbPath, 20*time.Millisecond) }()

	// Keep writing until the watcher is registered and the debounce fires.
	require.Eventually(t, func() bool {
		f, err := os.OpenFile(dbPath+"-wal", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString("page")
			_ = f.Close()
		}
		return loader.callCount() > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.NotNil(t, h.Current())
}

func TestHolder_WatchRequiresPath(t *testing.T) {
	h, _ := newHolder(&stubLoader{})
	require.Error(t, h.Watch(context.Background(), "", DefaultDebounce))
}

func TestTracksStoreFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trade_data.db")

	tests := []struct {
		name string
		file string
		want bool
	}{
		{"database", db, true},
		{"wal", db + "-wal", true},
		{"journal", db + "-journal", true},
		{"shared memory", db + "-shm", false},
		{"other file", filepath.Join(filepath.Dir(db), "notes.txt"), false},
		{"prefix collision", db + ".bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tracksStoreFile(db, tt.file))
		})
	}
}
