package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/marcboeker/go-duckdb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect abstracts the SQL differences between the supported databases.
type dialect interface {
	// Name is the config name of the dialect (duckdb, sqlite, postgres, clickhouse).
	Name() string
	// Placeholder returns the parameter placeholder for the 1-based index.
	Placeholder(index int) string
	// ColumnType returns the DDL type of a column.
	ColumnType(c column) string
	// TableSuffix is appended to CREATE TABLE statements.
	TableSuffix(t table) string
}

type duckDialect struct{}

func (duckDialect) Name() string                 { return "duckdb" }
func (duckDialect) Placeholder(index int) string { return "?" }
func (duckDialect) TableSuffix(t table) string   { return "" }

func (duckDialect) ColumnType(c column) string {
	if c.typ == colTime {
		return "TIMESTAMP"
	}
	return "VARCHAR"
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                 { return "sqlite" }
func (sqliteDialect) Placeholder(index int) string { return "?" }
func (sqliteDialect) TableSuffix(t table) string   { return "" }

func (sqliteDialect) ColumnType(c column) string {
	if c.typ == colTime {
		return "DATETIME"
	}
	return "TEXT"
}

type postgresDialect struct{}

func (postgresDialect) Name() string                 { return "postgres" }
func (postgresDialect) Placeholder(index int) string { return fmt.Sprintf("$%d", index) }
func (postgresDialect) TableSuffix(t table) string   { return "" }

func (postgresDialect) ColumnType(c column) string {
	if c.typ == colTime {
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

type clickhouseDialect struct{}

func (clickhouseDialect) Name() string                 { return "clickhouse" }
func (clickhouseDialect) Placeholder(index int) string { return "?" }

func (clickhouseDialect) ColumnType(c column) string {
	typ := "String"
	if c.typ == colTime {
		typ = "DateTime64(3)"
	}
	if c.nullable {
		return "Nullable(" + typ + ")"
	}
	return typ
}

func (clickhouseDialect) TableSuffix(t table) string {
	return " ENGINE = MergeTree ORDER BY (" + strings.Join(t.orderBy, ", ") + ")"
}

// dialectFor returns the dialect registered under name.
func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(name) {
	case "", "duckdb":
		return duckDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	case "clickhouse":
		return clickhouseDialect{}, nil
	}
	return nil, errors.Errorf("unsupported database driver: %q", name)
}

// openDB opens the database/sql handle for d.
func openDB(d dialect, dsn string) (*sql.DB, error) {
	switch d.(type) {
	case duckDialect:
		connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
			pragmas := []string{
				"PRAGMA threads=4",
				"PRAGMA enable_progress_bar=false",
			}
			for _, pragma := range pragmas {
				if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
					return errors.Wrapf(err, "executing %s", pragma)
				}
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating DuckDB connector")
		}
		return sql.OpenDB(connector), nil
	case sqliteDialect:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "opening sqlite database")
		}
		// a single connection keeps in-memory databases shared
		db.SetMaxOpenConns(1)
		return db, nil
	case postgresDialect:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "opening postgres database")
		}
		return db, nil
	case clickhouseDialect:
		opts, err := clickhouse.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parsing clickhouse DSN")
		}
		opts.ClientInfo.Products = append(opts.ClientInfo.Products, struct{ Name, Version string }{
			"react-timeline2", "1.0",
		})
		return clickhouse.OpenDB(opts), nil
	}
	log.Error().Str("component", "source").Str("dialect", d.Name()).Msg("no opener for dialect")
	return nil, errors.Errorf("no opener for dialect %s", d.Name())
}
