package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
	"github.com/google/uuid"
)

// Fetcher retrieves one page of an indicator series from the source.
type Fetcher interface {
	Fetch(ctx context.Context, indicator string) (domain.Payload, error)
}

// Normalizer turns a fetched payload into observations.
type Normalizer interface {
	Normalize(ctx context.Context, payload domain.Payload) ([]domain.Observation, domain.NormalizeStats, error)
}

// Persister replaces the stored table and its metadata.
type Persister interface {
	Replace(ctx context.Context, rows []domain.Observation, meta domain.Metadata) error
}

// Sink receives the normalized table after it has been persisted.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, indicator string, rows []domain.Observation) error
}

// State is a step of an ingestion run.
type State string

const (
	StateFetching    State = "FETCHING"
	StateNormalizing State = "NORMALIZING"
	StatePersisting  State = "PERSISTING"
	StatePublishing  State = "PUBLISHING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

func (s State) label() string { return strings.ToLower(string(s)) }

// Result describes a finished run. FailedStage is empty unless State is
// StateFailed, in which case Err holds one of the typed stage errors.
type Result struct {
	RunID       string
	Indicator   string
	State       State
	FailedStage State
	Stats       domain.NormalizeStats
	Rows        int
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// OK reports whether the run reached StateDone.
func (r Result) OK() bool { return r.State == StateDone }

// Pipeline runs fetch, normalize and persist once for a single indicator.
// There is no retry; a failed stage ends the run.
type Pipeline struct {
	indicator  string
	fetcher    Fetcher
	normalizer Normalizer
	persister  Persister
	sinks      []Sink
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Pipeline. Sinks are optional and run after persistence.
func New(indicator string, f Fetcher, n Normalizer, p Persister, logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *Pipeline {
	return &Pipeline{
		indicator:  indicator,
		fetcher:    f,
		normalizer: n,
		persister:  p,
		sinks:      sinks,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run executes one ingestion and returns its terminal result.
func (p *Pipeline) Run(ctx context.Context) Result {
	res := Result{
		RunID:     uuid.NewString(),
		Indicator: p.indicator,
		StartedAt: domain.Now(),
	}
	logger := p.logger.With("run_id", res.RunID, "indicator", p.indicator)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.transition(&res, StateFetching, logger)
	var payload domain.Payload
	err := p.timed(StateFetching, func() (err error) {
		payload, err = p.fetcher.Fetch(ctx, p.indicator)
		return err
	})
	if err != nil {
		return p.fail(&res, &FetchError{Indicator: p.indicator, Err: err}, logger)
	}
	if payload.Meta.Truncated() {
		logger.Warn("series spans more than one page, only the first was fetched",
			"pages", payload.Meta.Pages,
			"per_page", payload.Meta.PerPage,
			"total", payload.Meta.Total,
		)
	}

	p.transition(&res, StateNormalizing, logger)
	var rows []domain.Observation
	err = p.timed(StateNormalizing, func() (err error) {
		rows, res.Stats, err = p.normalizer.Normalize(ctx, payload)
		return err
	})
	p.metrics.RowsFetched.Set(float64(res.Stats.Input))
	if err != nil {
		return p.fail(&res, &NormalizationError{Indicator: p.indicator, Err: err}, logger)
	}
	p.metrics.RowsDropped.Set(float64(res.Stats.Dropped))
	logger.Info("records normalized",
		"input", res.Stats.Input,
		"dropped", res.Stats.Dropped,
		"kept", res.Stats.Kept,
	)

	p.transition(&res, StatePersisting, logger)
	meta := domain.Metadata{IngestionTime: domain.Now()}
	err = p.timed(StatePersisting, func() error {
		return p.persister.Replace(ctx, rows, meta)
	})
	if err != nil {
		return p.fail(&res, &PersistenceError{Indicator: p.indicator, Err: err}, logger)
	}
	res.Rows = len(rows)
	p.metrics.RowsPersisted.Set(float64(res.Rows))
	logger.Info("table replaced", "rows", res.Rows, "ingestion_time", meta.IngestionTime)

	if len(p.sinks) > 0 {
		p.transition(&res, StatePublishing, logger)
		err = p.timed(StatePublishing, func() error {
			return p.publish(ctx, rows, logger)
		})
		if err != nil {
			return p.fail(&res, err, logger)
		}
	}

	p.transition(&res, StateDone, logger)
	res.FinishedAt = domain.Now()
	p.metrics.Runs.WithLabelValues("done").Inc()
	p.metrics.LastSuccess.Set(float64(res.FinishedAt.Unix()))
	logger.Info("pipeline finished", "rows", res.Rows, "duration", res.FinishedAt.Sub(res.StartedAt))
	return res
}

// publish delivers rows to every sink, attempting all of them even when one fails.
func (p *Pipeline) publish(ctx context.Context, rows []domain.Observation, logger *slog.Logger) error {
	var (
		failed []string
		errs   []error
	)
	for _, s := range p.sinks {
		if err := s.Deliver(ctx, p.indicator, rows); err != nil {
			logger.Error("sink delivery failed", "sink", s.Name(), "error", err)
			p.metrics.SinkDeliveries.WithLabelValues(s.Name(), "error").Inc()
			failed = append(failed, s.Name())
			errs = append(errs, err)
			continue
		}
		p.metrics.SinkDeliveries.WithLabelValues(s.Name(), "success").Inc()
		logger.Info("sink delivered", "sink", s.Name(), "rows", len(rows))
	}
	if len(errs) == 0 {
		return nil
	}
	return &PublishError{Indicator: p.indicator, Sinks: failed, Err: errors.Join(errs...)}
}

func (p *Pipeline) transition(res *Result, to State, logger *slog.Logger) {
	logger.Info("state transition", "from", string(res.State), "state", string(to))
	res.State = to
}

func (p *Pipeline) fail(res *Result, err error, logger *slog.Logger) Result {
	stage := res.State
	logger.Error("stage failed", "stage", string(stage), "error", err)
	p.metrics.StageFailures.WithLabelValues(stage.label()).Inc()
	p.metrics.Runs.WithLabelValues("failed").Inc()

	res.FailedStage = stage
	res.Err = err
	p.transition(res, StateFailed, logger)
	res.FinishedAt = domain.Now()
	return *res
}

func (p *Pipeline) timed(stage State, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(stage.label()).Observe(time.Since(start).Seconds())
	return err
}
