package parquet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	parquetgo "github.com/parquet-go/parquet-go"
)

// Row is the Parquet schema of an exported observation.
type Row struct {
	Indicator   string  `parquet:"indicator,dict"`
	CountryISO3 string  `parquet:"countryiso3code,dict"`
	Country     string  `parquet:"country,dict"`
	Date        string  `parquet:"date,dict"`
	Value       float64 `parquet:"value"`
}

// Writer exports the normalized table to a Parquet file, replacing the
// previous export. It implements pipeline.Sink.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Parquet exporter for path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

func (w *Writer) Name() string { return "parquet" }

// Deliver writes rows to a temporary file next to the target and renames it
// into place, so readers never observe a partial file.
func (w *Writer) Deliver(ctx context.Context, indicator string, rows []domain.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	pw := parquetgo.NewGenericWriter[Row](tmp, parquetgo.Compression(&parquetgo.Snappy))
	if _, err := pw.Write(toRows(indicator, rows)); err != nil {
		tmp.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	w.logger.Info("parquet export written", "path", w.path, "rows", len(rows))
	return nil
}

func toRows(indicator string, rows []domain.Observation) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			Indicator:   indicator,
			CountryISO3: r.CountryISO3,
			Country:     r.Country,
			Date:        r.Date,
			Value:       r.Value,
		}
	}
	return out
}
