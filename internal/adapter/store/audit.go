package store

import (
	"context"
	"fmt"
	"time"
)

// AuditReport summarizes the stored table for integrity checks.
type AuditReport struct {
	Rows          int
	Countries     int
	Years         int
	NullValues    int
	EmptyKeys     int
	DuplicateKeys int
	IngestedAt    time.Time
	HasMetadata   bool
}

// Audit computes an AuditReport. It returns ErrNoTable when the observations
// table is missing.
func (s *Store) Audit(ctx context.Context) (AuditReport, error) {
	var r AuditReport

	exists, err := s.tableExists(ctx, TableObservations)
	if err != nil {
		return r, err
	}
	if !exists {
		return r, ErrNoTable
	}

	d := s.dialect
	table := d.quote(TableObservations)
	iso, country, date, value := d.quote("countryiso3code"), d.quote("country"), d.quote("date"), d.quote("value")

	queries := []struct {
		name  string
		query string
		dest  *int
	}{
		{"rows", "SELECT COUNT(*) FROM " + table, &r.Rows},
		{"countries", fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", country, table), &r.Countries},
		{"years", fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", date, table), &r.Years},
		{"null values", fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, value), &r.NullValues},
		{"empty keys", fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL OR %s = '' OR %s IS NULL OR %s = ''",
			table, iso, iso, date, date), &r.EmptyKeys},
		{"duplicate keys", fmt.Sprintf("SELECT COUNT(*) FROM (SELECT %s, %s FROM %s GROUP BY %s, %s HAVING COUNT(*) > 1) dup",
			iso, date, table, iso, date), &r.DuplicateKeys},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return r, fmt.Errorf("audit %s: %w", q.name, err)
		}
	}

	r.IngestedAt, r.HasMetadata, err = s.LastIngestion(ctx)
	if err != nil {
		return r, err
	}
	return r, nil
}
