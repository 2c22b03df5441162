package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ingested = time.Date(2025, time.July, 2, 8, 30, 0, 0, time.UTC)

func memoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Connect(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRows() []domain.Observation {
	return []domain.Observation{
		{CountryISO3: "DEU", Country: "Germany", Date: "2020", Value: -9.3},
		{CountryISO3: "FRA", Country: "France", Date: "2020", Value: -16.7},
		{CountryISO3: "DEU", Country: "Germany", Date: "2021", Value: 9.5},
		{CountryISO3: "EUU", Country: "European Union", Date: "2020", Value: -8.9},
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		in      string
		dialect Dialect
		driver  string
		path    string
	}{
		{"sqlite://trade_data.db", SQLite, "sqlite", "trade_data.db"},
		{"sqlite:///var/lib/trade/trade_data.db", SQLite, "sqlite", "/var/lib/trade/trade_data.db"},
		{"sqlite://data/trade.db?cache=shared", SQLite, "sqlite", "data/trade.db"},
		{"file:trade_data.db", SQLite, "sqlite", "trade_data.db"},
		{"trade_data.db", SQLite, "sqlite", "trade_data.db"},
		{"sqlite://:memory:", SQLite, "sqlite", ""},
		{"postgres://etl:secret@db:5432/trade?sslmode=disable", PostgreSQL, "postgres", ""},
		{"postgresql://db/trade", PostgreSQL, "postgres", ""},
		{"mysql://etl:secret@db:3306/trade", MySQL, "mysql", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, got.dialect)
			assert.Equal(t, tt.driver, got.driver)
			assert.Equal(t, tt.path, got.path)
		})
	}

	t.Run("postgres DSN is passed through", func(t *testing.T) {
		got, err := parseURL("postgres://etl:secret@db:5432/trade?sslmode=disable")
		require.NoError(t, err)
		assert.Equal(t, "postgres://etl:secret@db:5432/trade?sslmode=disable", got.dsn)
	})

	t.Run("mysql DSN parses time", func(t *testing.T) {
		got, err := parseURL("mysql://etl:secret@db:3306/trade")
		require.NoError(t, err)
		assert.Contains(t, got.dsn, "etl:secret@tcp(db:3306)/trade")
		assert.Contains(t, got.dsn, "parseTime=true")
	})

	t.Run("sqlite DSN sets pragmas", func(t *testing.T) {
		got, err := parseURL("sqlite://trade_data.db")
		require.NoError(t, err)
		assert.Contains(t, got.dsn, "busy_timeout(5000)")
		assert.Contains(t, got.dsn, "journal_mode(WAL)")
	})

	for _, bad := range []string{"mongodb://db/trade", "sqlite://", "postgres://%zz"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := parseURL(bad)
			require.Error(t, err)
		})
	}
}

func TestDialect(t *testing.T) {
	assert.Equal(t, `"trade_indicators"`, SQLite.quote(TableObservations))
	assert.Equal(t, `"we""ird"`, PostgreSQL.quote(`we"ird`))
	assert.Equal(t, "`trade_indicators`", MySQL.quote(TableObservations))

	assert.Equal(t, "$1, $2, $3", PostgreSQL.placeholders(3))
	assert.Equal(t, "?, ?", SQLite.placeholders(2))
	assert.Equal(t, "?", MySQL.placeholder(7))

	assert.True(t, SQLite.TransactionalDDL())
	assert.True(t, PostgreSQL.TransactionalDDL())
	assert.False(t, MySQL.TransactionalDDL())
}

func TestStore_ReplaceRoundTrip(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, sampleRows(), domain.Metadata{IngestionTime: ingested}))

	got, err := s.LoadObservations(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleRows(), got); diff != "" {
		t.Errorf("stored rows mismatch (-want +got):\n%s", diff)
	}

	at, ok, err := s.LastIngestion(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ingested.Equal(at), "got %v", at)
}

func TestStore_ReplaceDiscardsPreviousContents(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, sampleRows(), domain.Metadata{IngestionTime: ingested}))

	second := []domain.Observation{{CountryISO3: "ITA", Country: "Italy", Date: "2022", Value: 9.9}}
	later := ingested.Add(24 * time.Hour)
	require.NoError(t, s.Replace(ctx, second, domain.Metadata{IngestionTime: later}))

	got, err := s.LoadObservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	at, ok, err := s.LastIngestion(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, later.Equal(at))

	audit, err := s.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, audit.Rows)
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	for range 2 {
		require.NoError(t, s.Replace(ctx, sampleRows(), domain.Metadata{IngestionTime: ingested}))
	}

	got, err := s.LoadObservations(ctx)
	require.NoError(t, err)
	assert.Len(t, got, len(sampleRows()))
}

func TestStore_ReplaceEmpty(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, []domain.Observation{}, domain.Metadata{IngestionTime: ingested}))

	got, err := s.LoadObservations(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, ok, err := s.LastIngestion(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "metadata is written even for an empty table")
}

func TestStore_FreshDatabase(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	_, err := s.LoadObservations(ctx)
	require.ErrorIs(t, err, ErrNoTable)

	_, ok, err := s.LastIngestion(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
	_, ok = snap.IngestedAt()
	assert.False(t, ok)

	_, err = s.Audit(ctx)
	require.ErrorIs(t, err, ErrNoTable)
}

func TestStore_Snapshot(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, sampleRows(), domain.Metadata{IngestionTime: ingested}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, []string{"2020", "2021"}, snap.Years())

	at, ok := snap.IngestedAt()
	require.True(t, ok)
	assert.True(t, ingested.Equal(at))
}

func TestStore_Audit(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	rows := append(sampleRows(), domain.Observation{CountryISO3: "DEU", Country: "Germany", Date: "2020", Value: 1})
	require.NoError(t, s.Replace(ctx, rows, domain.Metadata{IngestionTime: ingested}))

	report, err := s.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Rows)
	assert.Equal(t, 3, report.Countries)
	assert.Equal(t, 2, report.Years)
	assert.Zero(t, report.NullValues)
	assert.Zero(t, report.EmptyKeys)
	assert.Equal(t, 1, report.DuplicateKeys)
	assert.True(t, report.HasMetadata)
	assert.True(t, ingested.Equal(report.IngestedAt))
}

func TestConnect_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trade_data.db")

	s, err := Connect(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, SQLite, s.Dialect())
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Replace(context.Background(), sampleRows(), domain.Metadata{IngestionTime: ingested}))

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestConnect_UnsupportedScheme(t *testing.T) {
	_, err := Connect(context.Background(), "mongodb://localhost/trade")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}

func TestStore_ReplaceRollsBackOnMetadataFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, SQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "trade_indicators"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "trade_indicators" ("countryiso3code" TEXT, "country" TEXT, "date" TEXT, "value" REAL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "trade_indicators"`))
	prep.ExpectExec().WithArgs("DEU", "Germany", "2020", 5.1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "metadata"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "metadata" ("ingestion_time" TIMESTAMP)`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "metadata"`)).WithArgs(sqlmock.AnyArg()).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = s.Replace(context.Background(),
		[]domain.Observation{{CountryISO3: "DEU", Country: "Germany", Date: "2020", Value: 5.1}},
		domain.Metadata{IngestionTime: ingested})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert metadata")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplacePostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, PostgreSQL)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "trade_indicators"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`"value" DOUBLE PRECISION`)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4)`))
	prep.ExpectExec().WithArgs("FRA", "France", "2021", 2.5).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "metadata"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`"ingestion_time" TIMESTAMPTZ`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "metadata" ("ingestion_time") VALUES ($1)`)).
		WithArgs(ingested).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.Replace(context.Background(),
		[]domain.Observation{{CountryISO3: "FRA", Country: "France", Date: "2021", Value: 2.5}},
		domain.Metadata{IngestionTime: ingested})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceMySQLQuoting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS `trade_indicators`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `trade_indicators` (`countryiso3code` VARCHAR(255)")).
		WillReturnError(errors.New("access denied"))
	mock.ExpectRollback()

	err = s.Replace(context.Background(), sampleRows(), domain.Metadata{IngestionTime: ingested})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create trade_indicators")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadObservationsRejectsNullValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, SQLite)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sqlite_master")).WithArgs(TableObservations).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "countryiso3code", "country", "date", "value" FROM "trade_indicators"`)).
		WillReturnRows(sqlmock.NewRows([]string{"countryiso3code", "country", "date", "value"}).
			AddRow("DEU", "Germany", "2020", nil))

	_, err = s.LoadObservations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEU|2020")
	require.NoError(t, mock.ExpectationsWereMet())
}
