package store

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor for a connection.
type Dialect string

const (
	SQLite     Dialect = "sqlite"
	PostgreSQL Dialect = "postgres"
	MySQL      Dialect = "mysql"
)

// quote escapes an identifier for the dialect.
func (d Dialect) quote(identifier string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == PostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) placeholders(count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func (d Dialect) textType() string {
	if d == MySQL {
		return "VARCHAR(255)"
	}
	return "TEXT"
}

func (d Dialect) realType() string {
	switch d {
	case PostgreSQL:
		return "DOUBLE PRECISION"
	case MySQL:
		return "DOUBLE"
	default:
		return "REAL"
	}
}

func (d Dialect) timestampType() string {
	switch d {
	case PostgreSQL:
		return "TIMESTAMPTZ"
	case MySQL:
		return "DATETIME(6)"
	default:
		return "TIMESTAMP"
	}
}

// TransactionalDDL reports whether DROP and CREATE roll back with the
// surrounding transaction. MySQL commits DDL implicitly.
func (d Dialect) TransactionalDDL() bool {
	return d != MySQL
}

// tableExistsQuery returns a query yielding one row when the table exists.
func (d Dialect) tableExistsQuery() string {
	switch d {
	case PostgreSQL:
		return "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	case MySQL:
		return "SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		return "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
}
