package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
)

// Table names shared with anything else that reads the database.
const (
	TableObservations = "trade_indicators"
	TableMetadata     = "metadata"
)

// ErrNoTable is returned when the observations table has never been written.
var ErrNoTable = errors.New("table " + TableObservations + " does not exist")

// Store persists the normalized table and its ingestion metadata.
type Store struct {
	db      *sql.DB
	dialect Dialect
	path    string
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the SQL flavor of the connection.
func (s *Store) Dialect() Dialect { return s.dialect }

// Path returns the SQLite database file, or "" for other stores.
func (s *Store) Path() string { return s.path }

// Ping checks that the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Replace drops and recreates both tables, writes rows in order and records
// meta, all inside one transaction. Earlier contents are discarded.
func (s *Store) Replace(ctx context.Context, rows []domain.Observation, meta domain.Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := s.recreate(ctx, tx, TableObservations, s.observationColumns()); err != nil {
		return err
	}
	if err := s.insertObservations(ctx, tx, rows); err != nil {
		return err
	}

	if err := s.recreate(ctx, tx, TableMetadata, s.metadataColumns()); err != nil {
		return err
	}
	insertMeta := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(TableMetadata), s.dialect.quote("ingestion_time"), s.dialect.placeholder(1))
	if _, err := tx.ExecContext(ctx, insertMeta, meta.IngestionTime.UTC()); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) observationColumns() string {
	d := s.dialect
	return fmt.Sprintf("%s %s, %s %s, %s %s, %s %s",
		d.quote("countryiso3code"), d.textType(),
		d.quote("country"), d.textType(),
		d.quote("date"), d.textType(),
		d.quote("value"), d.realType(),
	)
}

func (s *Store) metadataColumns() string {
	return fmt.Sprintf("%s %s", s.dialect.quote("ingestion_time"), s.dialect.timestampType())
}

func (s *Store) recreate(ctx context.Context, tx *sql.Tx, table, columns string) error {
	name := s.dialect.quote(table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, columns)); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

func (s *Store) insertObservations(ctx context.Context, tx *sql.Tx, rows []domain.Observation) error {
	if len(rows) == 0 {
		return nil
	}

	d := s.dialect
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (%s)",
		d.quote(TableObservations),
		d.quote("countryiso3code"), d.quote("country"), d.quote("date"), d.quote("value"),
		d.placeholders(4),
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.CountryISO3, r.Country, r.Date, r.Value); err != nil {
			return fmt.Errorf("insert row %d (%s): %w", i, r.Key(), err)
		}
	}
	return nil
}

// LoadObservations reads the whole observations table. It returns ErrNoTable
// when no ingestion has ever run against the store.
func (s *Store) LoadObservations(ctx context.Context) ([]domain.Observation, error) {
	exists, err := s.tableExists(ctx, TableObservations)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoTable
	}

	d := s.dialect
	query := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s",
		d.quote("countryiso3code"), d.quote("country"), d.quote("date"), d.quote("value"),
		d.quote(TableObservations),
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Observation, 0)
	for rows.Next() {
		var (
			o     domain.Observation
			value sql.NullFloat64
		)
		if err := rows.Scan(&o.CountryISO3, &o.Country, &o.Date, &value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if !value.Valid {
			return nil, fmt.Errorf("observation %s has a null value", o.Key())
		}
		o.Value = value.Float64
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

// LastIngestion returns the recorded ingestion time. ok is false when the
// metadata table is missing or empty.
func (s *Store) LastIngestion(ctx context.Context) (t time.Time, ok bool, err error) {
	exists, err := s.tableExists(ctx, TableMetadata)
	if err != nil || !exists {
		return time.Time{}, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 1", s.dialect.quote("ingestion_time"), s.dialect.quote(TableMetadata))
	err = s.db.QueryRowContext(ctx, query).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query metadata: %w", err)
	}
	return t.UTC(), true, nil
}

// Snapshot loads the table and metadata into an immutable snapshot. A store
// that has never been written yields an empty snapshot.
func (s *Store) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	rows, err := s.LoadObservations(ctx)
	if err != nil && !errors.Is(err, ErrNoTable) {
		return nil, err
	}

	at, ok, err := s.LastIngestion(ctx)
	if err != nil {
		return nil, err
	}

	var meta *domain.Metadata
	if ok {
		meta = &domain.Metadata{IngestionTime: at}
	}
	return domain.NewSnapshot(rows, meta), nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.tableExistsQuery(), table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return true, nil
}
