package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/trade-indicators/internal/domain"
)

// IndicatorNormalizer implements Normalizer with the domain decode and
// normalize functions.
type IndicatorNormalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates an IndicatorNormalizer.
func NewNormalizer(logger *slog.Logger) *IndicatorNormalizer {
	return &IndicatorNormalizer{logger: logger}
}

func (n *IndicatorNormalizer) Normalize(ctx context.Context, payload domain.Payload) ([]domain.Observation, domain.NormalizeStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NormalizeStats{}, err
	}

	records, err := domain.DecodeRecords(payload.Records)
	if err != nil {
		return nil, domain.NormalizeStats{}, err
	}

	rows, stats, err := domain.Normalize(records)
	if err != nil {
		return nil, stats, err
	}

	if stats.Dropped > 0 {
		n.logger.Debug("dropped records without a value", "dropped", stats.Dropped, "input", stats.Input)
	}
	if payload.Meta.Total > 0 && stats.Input < payload.Meta.Total {
		n.logger.Warn("page holds fewer records than the series total",
			"records", stats.Input,
			"total", payload.Meta.Total,
		)
	}
	return rows, stats, nil
}
