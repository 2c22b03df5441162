package domain

import (
	"context"
	"log/slog"
)

// Location source labels.
const (
	LocationSourceBoundary = "boundary"
	LocationSourceGeocoder = "geocoder"
)

// Location is the point a country is drawn at on the map.
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Source string  `json:"source"`
}

// Locator resolves a country to a map location.
type Locator interface {
	// Locate returns the location for a country, keyed primarily by ISO-3
	// code. The name is a hint for locators that search by text. ok is false
	// when the country has no known location.
	Locate(ctx context.Context, iso3, name string) (loc Location, ok bool, err error)
}

// GeoJoinedRow is an observation left-joined with its country location.
type GeoJoinedRow struct {
	Observation
	Location Location `json:"location"`
	Located  bool     `json:"located"`
}

// JoinLocations left-joins rows with their locations. A nil locator leaves
// every row unlocated. Locator errors degrade to unlocated rows.
func JoinLocations(ctx context.Context, rows []Observation, locator Locator, logger *slog.Logger) []GeoJoinedRow {
	joined := make([]GeoJoinedRow, len(rows))
	for i, row := range rows {
		joined[i] = GeoJoinedRow{Observation: row}
		if locator == nil {
			continue
		}

		loc, ok, err := locator.Locate(ctx, row.CountryISO3, row.Country)
		if err != nil {
			logger.Warn("locate country failed",
				"iso3", row.CountryISO3,
				"country", row.Country,
				"error", err,
			)
			continue
		}
		if ok {
			joined[i].Location = loc
			joined[i].Located = true
		}
	}
	return joined
}
