package domain

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"
)

// DefaultRankingLimit is the number of countries shown in the ranking view.
const DefaultRankingLimit = 10

// MinMarkerRadius is the smallest radius a map marker is drawn with.
const MinMarkerRadius = 3.0

// MapMarker is one located country on the map view.
type MapMarker struct {
	CountryISO3 string  `json:"countryiso3code"`
	Country     string  `json:"country"`
	Date        string  `json:"date"`
	Value       float64 `json:"value"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Radius      float64 `json:"radius"`
	Color       string  `json:"color"`
}

// MapView is the map for one year plus the color range it was scaled to.
type MapView struct {
	Year    string      `json:"year"`
	Markers []MapMarker `json:"markers"`
	Min     float64     `json:"min"`
	Max     float64     `json:"max"`
	Colors  []string    `json:"colors"`
}

// Snapshot is an immutable in-memory copy of the persisted table.
type Snapshot struct {
	rows      []Observation
	years     []string
	countries []string
	metadata  *Metadata
	loadedAt  time.Time
}

// NewSnapshot builds a snapshot from stored rows. meta is nil when the store
// holds no ingestion metadata.
func NewSnapshot(rows []Observation, meta *Metadata) *Snapshot {
	s := &Snapshot{
		rows:     slices.Clone(rows),
		loadedAt: Now(),
	}
	if s.rows == nil {
		s.rows = []Observation{}
	}
	if meta != nil {
		m := *meta
		s.metadata = &m
	}

	years := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, r := range s.rows {
		years[r.Date] = struct{}{}
		countries[r.Country] = struct{}{}
	}
	s.years = sortedKeys(years)
	s.countries = sortedKeys(countries)
	return s
}

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.rows) }

// Rows returns a copy of all rows in stored order.
func (s *Snapshot) Rows() []Observation { return slices.Clone(s.rows) }

// Years returns the distinct years in ascending order.
func (s *Snapshot) Years() []string { return slices.Clone(s.years) }

// Countries returns the distinct country names in ascending order.
func (s *Snapshot) Countries() []string { return slices.Clone(s.countries) }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// IngestedAt returns the recorded ingestion time. ok is false when the
// metadata table was missing, meaning the last ingestion did not complete.
func (s *Snapshot) IngestedAt() (t time.Time, ok bool) {
	if s.metadata == nil {
		return time.Time{}, false
	}
	return s.metadata.IngestionTime, true
}

// HasYear reports whether any row is dated year.
func (s *Snapshot) HasYear(year string) bool {
	_, found := slices.BinarySearch(s.years, year)
	return found
}

// HasCountry reports whether any row belongs to country.
func (s *Snapshot) HasCountry(country string) bool {
	_, found := slices.BinarySearch(s.countries, country)
	return found
}

// DefaultYear returns preferred when present, otherwise the latest year.
func (s *Snapshot) DefaultYear(preferred string) string {
	if s.HasYear(preferred) {
		return preferred
	}
	if len(s.years) == 0 {
		return ""
	}
	return s.years[len(s.years)-1]
}

// DefaultCountry returns preferred when present, otherwise the first country.
func (s *Snapshot) DefaultCountry(preferred string) string {
	if s.HasCountry(preferred) {
		return preferred
	}
	if len(s.countries) == 0 {
		return ""
	}
	return s.countries[0]
}

// Line returns the rows for country in ascending date order.
func (s *Snapshot) Line(country string) []Observation {
	out := s.filter(func(o Observation) bool { return o.Country == country })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Ranking returns the top limit rows for year by descending value. A
// non-positive limit uses DefaultRankingLimit.
func (s *Snapshot) Ranking(year string, limit int) []Observation {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	out := s.filter(func(o Observation) bool { return o.Date == year })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Map joins the rows for year with country locations and scales the located
// rows onto the marker color range. Rows that cannot be located are skipped.
func (s *Snapshot) Map(ctx context.Context, year string, locator Locator, logger *slog.Logger) MapView {
	view := MapView{Year: year, Markers: []MapMarker{}, Colors: ExportGrowthColors}

	rows := s.filter(func(o Observation) bool { return o.Date == year })
	joined := JoinLocations(ctx, rows, locator, logger)

	located := joined[:0]
	for _, j := range joined {
		if j.Located && !math.IsNaN(j.Value) {
			located = append(located, j)
		}
	}
	if len(located) == 0 {
		return view
	}

	view.Min, view.Max = located[0].Value, located[0].Value
	for _, j := range located[1:] {
		view.Min = math.Min(view.Min, j.Value)
		view.Max = math.Max(view.Max, j.Value)
	}

	cm, err := NewColormap(ExportGrowthColors, view.Min, view.Max)
	if err != nil {
		// The stops are package constants; a parse failure is a programming error.
		panic(err)
	}

	for _, j := range located {
		view.Markers = append(view.Markers, MapMarker{
			CountryISO3: j.CountryISO3,
			Country:     j.Country,
			Date:        j.Date,
			Value:       j.Value,
			Lat:         j.Location.Lat,
			Lon:         j.Location.Lon,
			Radius:      MarkerRadius(j.Value),
			Color:       cm.At(j.Value),
		})
	}
	return view
}

// MarkerRadius sizes a marker proportionally to its value, never below
// MinMarkerRadius.
func MarkerRadius(v float64) float64 {
	return math.Max(MinMarkerRadius, v/5)
}

func (s *Snapshot) filter(keep func(Observation) bool) []Observation {
	out := make([]Observation, 0)
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
