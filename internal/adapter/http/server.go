package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/trade-indicators/internal/dashboard"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errNoSnapshot = errors.New("snapshot not loaded")

// SnapshotSource supplies the snapshot each request is served from.
type SnapshotSource interface {
	sharedobs.ReadinessChecker
	Current() *domain.Snapshot
}

// Options are the dashboard defaults.
type Options struct {
	Addr           string
	Indicator      string
	DefaultYear    string
	DefaultCountry string
	RankingLimit   int
}

// Server serves the dashboard, its JSON views, and the health, readiness,
// and metrics endpoints.
type Server struct {
	httpServer *http.Server
	opts       Options
	source     SnapshotSource
	locator    domain.Locator
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates the dashboard HTTP server. locator may be nil, in which
// case the map view is always empty.
func NewServer(opts Options, source SnapshotSource, locator domain.Locator, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if opts.RankingLimit <= 0 {
		opts.RankingLimit = domain.DefaultRankingLimit
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		opts:    opts,
		source:  source,
		locator: locator,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /charts/line", s.handleLineChart)
	mux.HandleFunc("GET /charts/ranking", s.handleRankingChart)
	mux.HandleFunc("GET /charts/map", s.handleMapChart)
	mux.HandleFunc("GET /api/years", s.handleYears)
	mux.HandleFunc("GET /api/countries", s.handleCountries)
	mux.HandleFunc("GET /api/line", s.handleLine)
	mux.HandleFunc("GET /api/ranking", s.handleRanking)
	mux.HandleFunc("GET /api/map", s.handleMap)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(source))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// snapshot returns the current snapshot or writes 503 and returns nil.
func (s *Server) snapshot(w http.ResponseWriter) *domain.Snapshot {
	snap := s.source.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": errNoSnapshot.Error()})
	}
	return snap
}

func (s *Server) year(r *http.Request, snap *domain.Snapshot) string {
	if y := r.URL.Query().Get("year"); y != "" {
		return y
	}
	return snap.DefaultYear(s.opts.DefaultYear)
}

func (s *Server) country(r *http.Request, snap *domain.Snapshot) string {
	if c := r.URL.Query().Get("country"); c != "" {
		return c
	}
	return snap.DefaultCountry(s.opts.DefaultCountry)
}

func (s *Server) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.opts.RankingLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", raw)
	}
	return n, nil
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.metrics.ViewRequests.WithLabelValues("page").Inc()

	q := r.URL.Query()
	page := dashboard.NewPage(snap, s.opts.Indicator,
		firstNonEmpty(q.Get("year"), s.opts.DefaultYear),
		firstNonEmpty(q.Get("country"), s.opts.DefaultCountry),
		s.opts.RankingLimit)
	s.renderHTML(w, "page", func(buf *bytes.Buffer) error { return dashboard.RenderPage(buf, page) })
}

func (s *Server) handleLineChart(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.metrics.ViewRequests.WithLabelValues("line").Inc()

	country := s.country(r, snap)
	rows := snap.Line(country)
	s.renderHTML(w, "line", func(buf *bytes.Buffer) error {
		return dashboard.RenderLine(buf, s.opts.Indicator, country, rows)
	})
}

func (s *Server) handleRankingChart(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	limit, err := s.limit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.ViewRequests.WithLabelValues("ranking").Inc()

	year := s.year(r, snap)
	rows := snap.Ranking(year, limit)
	s.renderHTML(w, "ranking", func(buf *bytes.Buffer) error {
		return dashboard.RenderRanking(buf, s.opts.Indicator, year, rows)
	})
}

func (s *Server) handleMapChart(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.metrics.ViewRequests.WithLabelValues("map").Inc()

	view := snap.Map(r.Context(), s.year(r, snap), s.locator, s.logger)
	s.renderHTML(w, "map", func(buf *bytes.Buffer) error {
		return dashboard.RenderMap(buf, s.opts.Indicator, view)
	})
}

func (s *Server) handleYears(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, snap.Years())
}

func (s *Server) handleCountries(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, snap.Countries())
}

func (s *Server) handleLine(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.metrics.ViewRequests.WithLabelValues("line").Inc()
	writeJSON(w, http.StatusOK, snap.Line(s.country(r, snap)))
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	limit, err := s.limit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.ViewRequests.WithLabelValues("ranking").Inc()
	writeJSON(w, http.StatusOK, snap.Ranking(s.year(r, snap), limit))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.metrics.ViewRequests.WithLabelValues("map").Inc()
	writeJSON(w, http.StatusOK, snap.Map(r.Context(), s.year(r, snap), s.locator, s.logger))
}

// renderHTML buffers the output so a render failure can still produce a 500.
func (s *Server) renderHTML(w http.ResponseWriter, view string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.logger.Error("render view failed", "view", view, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
