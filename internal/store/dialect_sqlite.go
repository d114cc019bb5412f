package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lowcode-backend/internal/metadata"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{placeholder: d.Placeholder}
}

// QuoteIdent uses backticks. SQLite reads an unmatched double-quoted name
// as a string literal, which would hide a missing column.
func (d *SQLiteDialect) QuoteIdent(name string) string { return quoteWith("`", name) }
func (d *SQLiteDialect) TimestampType() string         { return "TEXT" }
func (d *SQLiteDialect) NowExpr() string               { return "CURRENT_TIMESTAMP" }
func (d *SQLiteDialect) OnUpdateNow() string           { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool            { return true }

// TimeParam stores timestamps as RFC 3339 text in UTC.
func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format(time.RFC3339Nano)
}

func (d *SQLiteDialect) ColumnType(f metadata.Field) string {
	switch f.Type {
	case metadata.TypeNumber:
		return "REAL"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) UpsertClause(key string, updateCols []string) string {
	return upsertOnConflict(d, key, updateCols)
}

// Configure limits SQLite to a single writer connection and enables WAL
// for concurrent readers.
func (d *SQLiteDialect) Configure(ctx context.Context, db *sql.DB, _ int) error {
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// sqliteDSN adds a busy timeout so separate pools on the same file wait
// for each other instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}
