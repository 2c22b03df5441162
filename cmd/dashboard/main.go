package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/trade-indicators/internal/adapter/geo"
	httpadapter "github.com/couchcryptid/trade-indicators/internal/adapter/http"
	"github.com/couchcryptid/trade-indicators/internal/adapter/mapbox"
	"github.com/couchcryptid/trade-indicators/internal/adapter/store"
	"github.com/couchcryptid/trade-indicators/internal/config"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
	"github.com/couchcryptid/trade-indicators/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, cfg.StoreURL)
	if err != nil {
		logger.Error("failed to connect store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	boundaries, err := geo.LoadBoundaries(cfg.GeoBoundariesPath, logger)
	if err != nil {
		logger.Error("failed to load country boundaries", "path", cfg.GeoBoundariesPath, "error", err)
		os.Exit(1)
	}
	locators := geo.Chain{boundaries}

	// Mapbox is a fallback for countries the boundaries file lacks.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		locators = append(locators, mapbox.NewCachedLocator(client, cfg.MapboxCacheSize, metrics))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	var locator domain.Locator = locators

	holder := snapshot.NewHolder(st, metrics, logger)
	if err := holder.Reload(ctx); err != nil {
		// Readiness stays false until a later refresh succeeds.
		logger.Error("initial snapshot load failed", "error", err)
	}

	switch {
	case cfg.SnapshotRefresh != "":
		go func() {
			if err := holder.RunSchedule(ctx, cfg.SnapshotRefresh); err != nil {
				logger.Error("snapshot schedule error", "error", err)
			}
		}()
	case cfg.SnapshotWatch:
		go func() {
			if err := holder.Watch(ctx, st.Path(), snapshot.DefaultDebounce); err != nil {
				logger.Error("snapshot watch error", "error", err)
			}
		}()
	default:
		logger.Info("snapshot refresh disabled, restart to pick up new ingestions")
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:           cfg.HTTPAddr,
		Indicator:      cfg.Indicator,
		DefaultYear:    cfg.DefaultYear,
		DefaultCountry: cfg.DefaultCountry,
		RankingLimit:   cfg.RankingLimit,
	}, holder, locator, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
