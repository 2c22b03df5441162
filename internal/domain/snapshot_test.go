package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testYear    = "2020"
	testGermany = "Germany"
)

type mockLocator struct {
	locations map[string]Location
	err       error
	calls     int
}

func (m *mockLocator) Locate(_ context.Context, iso3, _ string) (Location, bool, error) {
	m.calls++
	if m.err != nil {
		return Location{}, false, m.err
	}
	loc, ok := m.locations[iso3]
	return loc, ok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRows() []Observation {
	return []Observation{
		{CountryISO3: "DEU", Country: testGermany, Date: "2021", Value: 9.5},
		{CountryISO3: "DEU", Country: testGermany, Date: "2019", Value: 1.2},
		{CountryISO3: "DEU", Country: testGermany, Date: testYear, Value: -9.3},
		{CountryISO3: "FRA", Country: "France", Date: testYear, Value: -16.7},
		{CountryISO3: "EUU", Country: "European Union", Date: testYear, Value: -8.9},
		{CountryISO3: "ITA", Country: "Italy", Date: testYear, Value: 12},
	}
}

func TestNewSnapshot(t *testing.T) {
	frozen := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { SetClock(nil) })

	ingested := frozen.Add(-time.Hour)
	snap := NewSnapshot(sampleRows(), &Metadata{IngestionTime: ingested})

	assert.Equal(t, 6, snap.Len())
	assert.Equal(t, []string{"2019", testYear, "2021"}, snap.Years())
	assert.Equal(t, []string{"European Union", "France", testGermany, "Italy"}, snap.Countries())
	assert.Equal(t, frozen, snap.LoadedAt())

	at, ok := snap.IngestedAt()
	assert.True(t, ok)
	assert.Equal(t, ingested, at)
}

func TestNewSnapshot_WithoutMetadata(t *testing.T) {
	snap := NewSnapshot(nil, nil)

	_, ok := snap.IngestedAt()
	assert.False(t, ok)
	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Years())
	assert.Empty(t, snap.DefaultYear("2023"))
	assert.Empty(t, snap.DefaultCountry("European Union"))
	assert.Empty(t, snap.Line(testGermany))
	assert.Empty(t, snap.Ranking(testYear, 10))
}

func TestSnapshot_IsolatedFromCaller(t *testing.T) {
	rows := sampleRows()
	snap := NewSnapshot(rows, nil)
	rows[0].Value = 999

	assert.InDelta(t, 9.5, snap.Rows()[0].Value, 0)

	out := snap.Rows()
	out[0].Value = 111
	assert.InDelta(t, 9.5, snap.Rows()[0].Value, 0)
}

func TestSnapshot_Defaults(t *testing.T) {
	snap := NewSnapshot(sampleRows(), nil)

	assert.Equal(t, testYear, snap.DefaultYear(testYear))
	assert.Equal(t, "2021", snap.DefaultYear("2023"), "falls back to the latest year")
	assert.Equal(t, "European Union", snap.DefaultCountry("European Union"))
	assert.Equal(t, "European Union", snap.DefaultCountry("Atlantis"), "falls back to the first country")
}

func TestSnapshot_Line(t *testing.T) {
	snap := NewSnapshot(sampleRows(), nil)

	line := snap.Line(testGermany)
	require.Len(t, line, 3)
	assert.Equal(t, "2019", line[0].Date)
	assert.Equal(t, testYear, line[1].Date)
	assert.Equal(t, "2021", line[2].Date)

	assert.Empty(t, snap.Line("Atlantis"))
}

func TestSnapshot_Ranking(t *testing.T) {
	rows := make([]Observation, 0, 20)
	for i := 0; i < 15; i++ {
		rows = append(rows, Observation{
			CountryISO3: fmt.Sprintf("C%02d", i),
			Country:     fmt.Sprintf("Country %02d", i),
			Date:        testYear,
			Value:       float64((i * 7) % 15),
		})
	}
	rows = append(rows, Observation{CountryISO3: "OLD", Country: "Old", Date: "2019", Value: 1000})

	snap := NewSnapshot(rows, nil)
	ranking := snap.Ranking(testYear, 10)

	require.Len(t, ranking, 10)
	for i := 1; i < len(ranking); i++ {
		assert.GreaterOrEqual(t, ranking[i-1].Value, ranking[i].Value)
	}
	assert.InDelta(t, 14.0, ranking[0].Value, 0)
	for _, r := range ranking {
		assert.Equal(t, testYear, r.Date)
	}

	assert.Len(t, snap.Ranking(testYear, 0), DefaultRankingLimit)
	assert.Len(t, snap.Ranking(testYear, 3), 3)
	assert.Len(t, snap.Ranking("2019", 10), 1)
}

func TestSnapshot_RankingStableOnTies(t *testing.T) {
	snap := NewSnapshot([]Observation{
		{CountryISO3: "AAA", Country: "A", Date: testYear, Value: 1},
		{CountryISO3: "BBB", Country: "B", Date: testYear, Value: 2},
		{CountryISO3: "CCC", Country: "C", Date: testYear, Value: 1},
	}, nil)

	ranking := snap.Ranking(testYear, 10)
	require.Len(t, ranking, 3)
	assert.Equal(t, []string{"BBB", "AAA", "CCC"}, []string{ranking[0].CountryISO3, ranking[1].CountryISO3, ranking[2].CountryISO3})
}

func TestSnapshot_Map(t *testing.T) {
	locator := &mockLocator{locations: map[string]Location{
		"DEU": {Lat: 51.1, Lon: 10.4, Source: LocationSourceBoundary},
		"FRA": {Lat: 46.6, Lon: 2.4, Source: LocationSourceBoundary},
		"ITA": {Lat: 42.8, Lon: 12.1, Source: LocationSourceBoundary},
	}}
	snap := NewSnapshot(sampleRows(), nil)

	view := snap.Map(context.Background(), testYear, locator, discardLogger())

	require.Len(t, view.Markers, 3, "aggregate EUU has no location and is skipped")
	assert.Equal(t, testYear, view.Year)
	assert.InDelta(t, -16.7, view.Min, 1e-9)
	assert.InDelta(t, 12.0, view.Max, 1e-9)
	assert.Equal(t, ExportGrowthColors, view.Colors)

	byISO := make(map[string]MapMarker)
	for _, m := range view.Markers {
		byISO[m.CountryISO3] = m
	}

	fra := byISO["FRA"]
	assert.Equal(t, "#f7fbff", fra.Color, "minimum value takes the first stop")
	assert.InDelta(t, MinMarkerRadius, fra.Radius, 0)
	assert.InDelta(t, 46.6, fra.Lat, 0)

	ita := byISO["ITA"]
	assert.Equal(t, "#08306b", ita.Color, "maximum value takes the last stop")
	assert.InDelta(t, MinMarkerRadius, ita.Radius, 0, "12/5 is below the minimum radius")

	assert.Equal(t, 4, locator.calls)
}

func TestSnapshot_MapRadiusScales(t *testing.T) {
	locator := &mockLocator{locations: map[string]Location{"CHN": {Lat: 35, Lon: 103}}}
	snap := NewSnapshot([]Observation{{CountryISO3: "CHN", Country: "China", Date: testYear, Value: 40}}, nil)

	view := snap.Map(context.Background(), testYear, locator, discardLogger())
	require.Len(t, view.Markers, 1)
	assert.InDelta(t, 8.0, view.Markers[0].Radius, 1e-9)
}

func TestSnapshot_MapWithoutLocator(t *testing.T) {
	snap := NewSnapshot(sampleRows(), nil)
	view := snap.Map(context.Background(), testYear, nil, discardLogger())

	assert.NotNil(t, view.Markers)
	assert.Empty(t, view.Markers)
}

func TestSnapshot_MapLocatorErrorDegrades(t *testing.T) {
	locator := &mockLocator{err: errors.New("geocoder down")}
	snap := NewSnapshot(sampleRows(), nil)

	view := snap.Map(context.Background(), testYear, locator, discardLogger())
	assert.Empty(t, view.Markers)
}

func TestJoinLocations(t *testing.T) {
	locator := &mockLocator{locations: map[string]Location{"DEU": {Lat: 51, Lon: 10}}}
	rows := []Observation{
		{CountryISO3: "DEU", Country: testGermany, Date: testYear, Value: 1},
		{CountryISO3: "WLD", Country: "World", Date: testYear, Value: 2},
	}

	joined := JoinLocations(context.Background(), rows, locator, discardLogger())
	require.Len(t, joined, 2)
	assert.True(t, joined[0].Located)
	assert.InDelta(t, 51.0, joined[0].Location.Lat, 0)
	assert.False(t, joined[1].Located)
	assert.Equal(t, "World", joined[1].Country)
}

func TestMarkerRadius(t *testing.T) {
	assert.InDelta(t, 3.0, MarkerRadius(-20), 0)
	assert.InDelta(t, 3.0, MarkerRadius(15), 0)
	assert.InDelta(t, 4.0, MarkerRadius(20), 0)
}
