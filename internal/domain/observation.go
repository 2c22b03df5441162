package domain

import (
	"fmt"
	"time"
)

// Observation is one normalized (country, year, value) measurement.
type Observation struct {
	CountryISO3 string  `json:"countryiso3code"`
	Country     string  `json:"country"`
	Date        string  `json:"date"`
	Value       float64 `json:"value"`
}

// Key identifies an observation within a single indicator series.
func (o Observation) Key() string {
	return o.CountryISO3 + "|" + o.Date
}

// Metadata is the single-row audit record written after each ingestion.
type Metadata struct {
	IngestionTime time.Time `json:"ingestion_time"`
}

// NormalizeStats counts what normalization kept and dropped.
type NormalizeStats struct {
	Input   int `json:"input"`
	Dropped int `json:"dropped"`
	Kept    int `json:"kept"`
}

// Normalize turns raw records into observations, preserving source order.
// Records without a value are dropped; the remaining values are coerced to
// float64 and a value that cannot be coerced fails the whole batch.
func Normalize(records []IndicatorRecord) ([]Observation, NormalizeStats, error) {
	stats := NormalizeStats{Input: len(records)}
	out := make([]Observation, 0, len(records))

	for i, rec := range records {
		if !rec.Value.Present() {
			stats.Dropped++
			continue
		}
		v, err := rec.Value.Float64()
		if err != nil {
			return nil, stats, fmt.Errorf("record %d (%s %s): %w", i, rec.CountryISO3, rec.Date, err)
		}
		out = append(out, Observation{
			CountryISO3: rec.CountryISO3,
			Country:     rec.Country.Name,
			Date:        rec.Date,
			Value:       v,
		})
	}

	stats.Kept = len(out)
	return out, stats, nil
}
