// Command genmock writes a synthetic World Bank indicator response: the
// two-element [meta, records] array the ingest binary fetches. The output
// mixes the shapes the normalizer has to handle (nested and plain country
// names, null values, numeric strings) so it can stand in for the real API
// during local runs and demos.
//
// Usage:
//
//	go run ./cmd/genmock --out data/mock/worldbank_exports.json --seed 42
//
// Serve the file with any static server and point WORLDBANK_BASE_URL at it,
// or feed it to `validate --payload`.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"
)

type country struct {
	iso2, iso3, name string
}

// A mix of economies and the aggregates the API reports alongside them.
var countries = []country{
	{"DE", "DEU", "Germany"},
	{"FR", "FRA", "France"},
	{"IT", "ITA", "Italy"},
	{"ES", "ESP", "Spain"},
	{"JP", "JPN", "Japan"},
	{"CN", "CHN", "China"},
	{"US", "USA", "United States"},
	{"BR", "BRA", "Brazil"},
	{"IN", "IND", "India"},
	{"ZA", "ZAF", "South Africa"},
	{"KR", "KOR", "Korea, Rep."},
	{"CI", "CIV", "Cote d'Ivoire"},
	{"EU", "EUU", "European Union"},
	{"1W", "WLD", "World"},
	{"XD", "HIC", "High income"},
}

type options struct {
	out       string
	indicator string
	seed      uint64
	fromYear  int
	toYear    int
	nullRate  float64
}

// wireRecord mirrors the fields the API returns for each observation.
type wireRecord struct {
	Indicator   idValue `json:"indicator"`
	Country     any     `json:"country"`
	CountryISO3 string  `json:"countryiso3code"`
	Date        string  `json:"date"`
	Value       any     `json:"value"`
	Unit        string  `json:"unit"`
	ObsStatus   string  `json:"obs_status"`
	Decimal     int     `json:"decimal"`
}

type idValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type wireMeta struct {
	Page        int    `json:"page"`
	Pages       int    `json:"pages"`
	PerPage     string `json:"per_page"`
	Total       int    `json:"total"`
	SourceID    string `json:"sourceid"`
	LastUpdated string `json:"lastupdated"`
}

func main() {
	var opts options

	app := &cli.App{
		Name:  "genmock",
		Usage: "Generate a synthetic World Bank indicator response",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "data/mock/worldbank_exports.json", Usage: "output path", Destination: &opts.out},
			&cli.StringFlag{Name: "indicator", Value: "NE.EXP.GNFS.KD.ZG", Usage: "indicator code to stamp on records", Destination: &opts.indicator},
			&cli.Uint64Flag{Name: "seed", Value: 42, Usage: "random seed for reproducible output", Destination: &opts.seed},
			&cli.IntFlag{Name: "from-year", Value: 2015, Usage: "first year", Destination: &opts.fromYear},
			&cli.IntFlag{Name: "to-year", Value: 2023, Usage: "last year", Destination: &opts.toYear},
			&cli.Float64Flag{Name: "null-rate", Value: 0.1, Usage: "fraction of records with a null value", Destination: &opts.nullRate},
		},
		Action: func(*cli.Context) error { return run(opts) },
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	if opts.fromYear > opts.toYear {
		return fmt.Errorf("from-year %d is after to-year %d", opts.fromYear, opts.toYear)
	}
	if opts.nullRate < 0 || opts.nullRate > 1 {
		return fmt.Errorf("null-rate %v must be between 0 and 1", opts.nullRate)
	}

	// Fixed clock so lastupdated is reproducible for a given seed.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	records := generate(gofakeit.New(opts.seed), opts)
	body, err := encodePayload(records)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(opts.out, body, 0o644); err != nil { //nolint:gosec // fixture file, not secret
		return fmt.Errorf("write %s: %w", opts.out, err)
	}

	fmt.Printf("wrote %d records (%d countries, %d-%d) to %s\n",
		len(records), len(countries), opts.fromYear, opts.toYear, opts.out)
	return nil
}

// generate emits records newest year first, as the API does.
func generate(f *gofakeit.Faker, opts options) []wireRecord {
	indicator := idValue{ID: opts.indicator, Value: "Exports of goods and services (annual % growth)"}
	records := make([]wireRecord, 0, len(countries)*(opts.toYear-opts.fromYear+1))

	for _, c := range countries {
		for year := opts.toYear; year >= opts.fromYear; year-- {
			rec := wireRecord{
				Indicator:   indicator,
				Country:     idValue{ID: c.iso2, Value: c.name},
				CountryISO3: c.iso3,
				Date:        strconv.Itoa(year),
				Decimal:     1,
			}

			// Occasionally use the plain-string country form.
			if f.Float64Range(0, 1) < 0.05 {
				rec.Country = c.name
			}

			switch v := f.Float64Range(-20, 25); {
			case f.Float64Range(0, 1) < opts.nullRate:
				rec.Value = nil
			case f.Float64Range(0, 1) < 0.05:
				rec.Value = strconv.FormatFloat(v, 'f', 1, 64)
			default:
				rec.Value = round1(v)
			}
			records = append(records, rec)
		}
	}
	return records
}

func encodePayload(records []wireRecord) ([]byte, error) {
	meta := wireMeta{
		Page:        1,
		Pages:       1,
		PerPage:     "10000",
		Total:       len(records),
		SourceID:    "2",
		LastUpdated: domain.Now().Format("2006-01-02"),
	}

	body, err := json.MarshalIndent([]any{meta, records}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return append(body, '\n'), nil
}

func round1(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return r
}
