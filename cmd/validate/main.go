// Command validate audits a persisted indicator store: both tables exist,
// the rows satisfy the normalization invariants, the ingestion is fresh
// enough, and optionally the table matches what a saved World Bank payload
// normalizes to.
//
// Usage:
//
//	go run ./cmd/validate --store-url sqlite://trade_data.db --max-age 48h \
//	  --payload data/mock/worldbank_exports.json
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/adapter/store"
	"github.com/couchcryptid/trade-indicators/internal/adapter/worldbank"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/urfave/cli/v2"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	skipped bool
	errors  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	storeURL    string
	maxAge      time.Duration
	payloadPath string
}

func main() {
	var opts options

	app := &cli.App{
		Name:  "validate",
		Usage: "Audit the persisted indicator table and its ingestion metadata",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "store-url",
				Aliases:     []string{"s"},
				Usage:       "Store URL to audit",
				Value:       "sqlite://trade_data.db",
				EnvVars:     []string{"STORE_URL"},
				Destination: &opts.storeURL,
			},
			&cli.DurationFlag{
				Name:        "max-age",
				Usage:       "Fail when the last ingestion is older than this (0 disables the check)",
				Destination: &opts.maxAge,
			},
			&cli.StringFlag{
				Name:        "payload",
				Aliases:     []string{"p"},
				Usage:       "Saved World Bank response the table must match after normalization",
				Destination: &opts.payloadPath,
			},
		},
		Action: func(c *cli.Context) error {
			if code := run(c.Context, os.Stdout, opts); code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, opts options) int {
	fmt.Fprintln(out, "=== Trade Indicator Store Validation ===")
	fmt.Fprintln(out)

	st, err := store.Connect(ctx, opts.storeURL)
	if err != nil {
		fmt.Fprintf(out, "FATAL: connect store: %v\n", err)
		return 1
	}
	defer st.Close()

	report, auditErr := st.Audit(ctx)

	phases := []*phase{
		validateTables(report, auditErr),
		validateRows(report, auditErr),
		validateFreshness(report, opts.maxAge, domain.Now()),
		validatePayload(ctx, opts.payloadPath, st),
	}

	return printReport(out, report, phases)
}

func printReport(out io.Writer, report store.AuditReport, phases []*phase) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped:
			status = "\033[33mSKIP\033[0m"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d across %d countries and %d years\n", report.Rows, report.Countries, report.Years)
	if report.HasMetadata {
		fmt.Fprintf(out, "Last ingestion: %s\n", report.IngestedAt.Format(time.RFC3339))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Tables ──
// Both tables must exist. A missing metadata table means the last ingestion
// did not complete cleanly.

func validateTables(report store.AuditReport, auditErr error) *phase {
	p := &phase{name: "Phase 1: Tables"}

	if auditErr != nil {
		p.errorf("%s: %v", store.TableObservations, auditErr)
		return p
	}
	if !report.HasMetadata {
		p.errorf("%s table missing or empty: the last ingestion did not complete cleanly", store.TableMetadata)
	}
	return p
}

// ── Phase 2: Row invariants ──

func validateRows(report store.AuditReport, auditErr error) *phase {
	p := &phase{name: "Phase 2: Row Invariants"}
	if auditErr != nil {
		p.skipped = true
		return p
	}

	if report.NullValues > 0 {
		p.errorf("%d rows have a null value", report.NullValues)
	}
	if report.EmptyKeys > 0 {
		p.errorf("%d rows have an empty country code or date", report.EmptyKeys)
	}
	if report.DuplicateKeys > 0 {
		p.errorf("%d (country, date) keys appear more than once", report.DuplicateKeys)
	}
	return p
}

// ── Phase 3: Freshness ──

func validateFreshness(report store.AuditReport, maxAge time.Duration, now time.Time) *phase {
	p := &phase{name: "Phase 3: Freshness"}
	if !report.HasMetadata {
		p.skipped = maxAge <= 0
		if !p.skipped {
			p.errorf("no ingestion time recorded")
		}
		return p
	}

	if report.IngestedAt.After(now) {
		p.errorf("ingestion time %s is in the future", report.IngestedAt.Format(time.RFC3339))
	}
	if maxAge <= 0 {
		return p
	}
	if age := now.Sub(report.IngestedAt); age > maxAge {
		p.errorf("last ingestion is %s old, limit %s", age.Round(time.Second), maxAge)
	}
	return p
}

// ── Phase 4: Payload parity ──
// The stored rows must equal what the saved payload normalizes to.

type observationLoader interface {
	LoadObservations(ctx context.Context) ([]domain.Observation, error)
}

func validatePayload(ctx context.Context, path string, loader observationLoader) *phase {
	p := &phase{name: "Phase 4: Payload Parity"}
	if path == "" {
		p.skipped = true
		return p
	}

	stored, err := loader.LoadObservations(ctx)
	if err != nil {
		p.errorf("load stored rows: %v", err)
		return p
	}

	body, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read payload: %v", err)
		return p
	}
	payload, err := worldbank.DecodePayload(body)
	if err != nil {
		p.errorf("decode payload: %v", err)
		return p
	}
	records, err := domain.DecodeRecords(payload.Records)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	expected, _, err := domain.Normalize(records)
	if err != nil {
		p.errorf("normalize payload: %v", err)
		return p
	}

	compareObservations(p, expected, stored)
	return p
}

func compareObservations(p *phase, expected, stored []domain.Observation) {
	if len(expected) != len(stored) {
		p.errorf("payload normalizes to %d rows, store has %d", len(expected), len(stored))
	}

	byKey := make(map[string]domain.Observation, len(stored))
	for _, o := range stored {
		byKey[o.Key()] = o
	}

	var missing []string
	for _, want := range expected {
		got, ok := byKey[want.Key()]
		if !ok {
			missing = append(missing, want.Key())
			continue
		}
		if got.Country != want.Country {
			p.errorf("%s: country %q, want %q", want.Key(), got.Country, want.Country)
		}
		if got.Value != want.Value {
			p.errorf("%s: value %v, want %v", want.Key(), got.Value, want.Value)
		}
	}

	sort.Strings(missing)
	for _, k := range missing {
		p.errorf("%s: missing from store", k)
	}
}
