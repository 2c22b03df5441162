// Package snapshot keeps the dashboard's in-memory copy of the persisted
// indicator table current.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
)

// ErrNotLoaded is returned by CheckReadiness before the first successful load.
var ErrNotLoaded = errors.New("snapshot not loaded")

// Loader reads the persisted table into a snapshot.
type Loader interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Holder owns the current snapshot. Readers never block on a reload.
type Holder struct {
	loader  Loader
	current atomic.Pointer[domain.Snapshot]
	reload  sync.Mutex
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHolder creates an empty holder. Call Reload to load the first snapshot.
func NewHolder(loader Loader, metrics *observability.Metrics, logger *slog.Logger) *Holder {
	return &Holder{
		loader:  loader,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the latest snapshot, or nil before the first load.
func (h *Holder) Current() *domain.Snapshot {
	return h.current.Load()
}

// Reload reads the store and swaps in the new snapshot. On failure the
// previous snapshot stays in place.
func (h *Holder) Reload(ctx context.Context) error {
	h.reload.Lock()
	defer h.reload.Unlock()

	snap, err := h.loader.Snapshot(ctx)
	if err != nil {
		h.metrics.SnapshotReloads.WithLabelValues("error").Inc()
		h.logger.Error("snapshot reload failed", "error", err, "kept_previous", h.current.Load() != nil)
		return fmt.Errorf("reload snapshot: %w", err)
	}

	h.current.Store(snap)
	h.metrics.SnapshotReloads.WithLabelValues("success").Inc()
	h.metrics.SnapshotRows.Set(float64(snap.Len()))

	attrs := []any{"rows", snap.Len(), "years", len(snap.Years()), "countries", len(snap.Countries())}
	if at, ok := snap.IngestedAt(); ok {
		attrs = append(attrs, "ingested_at", at)
	} else {
		attrs = append(attrs, "metadata", "missing")
	}
	h.logger.Info("snapshot loaded", attrs...)
	return nil
}

// CheckReadiness implements the readiness probe: ready once any snapshot,
// even an empty one, has been loaded.
func (h *Holder) CheckReadiness(_ context.Context) error {
	if h.current.Load() == nil {
		return ErrNotLoaded
	}
	return nil
}
