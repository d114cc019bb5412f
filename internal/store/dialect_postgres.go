package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"lowcode-backend/internal/metadata"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{placeholder: d.Placeholder}
}

func (d *PostgresDialect) QuoteIdent(name string) string { return quoteWith(`"`, name) }
func (d *PostgresDialect) TimestampType() string         { return "TIMESTAMPTZ" }
func (d *PostgresDialect) NowExpr() string               { return "CURRENT_TIMESTAMP" }
func (d *PostgresDialect) OnUpdateNow() string           { return "" }
func (d *PostgresDialect) NeedsBoolFix() bool            { return false }
func (d *PostgresDialect) TimeParam(t time.Time) any     { return t.UTC() }

func (d *PostgresDialect) ColumnType(f metadata.Field) string {
	switch f.Type {
	case metadata.TypeNumber:
		return "DOUBLE PRECISION"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	case metadata.TypeDate:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) UpsertClause(key string, updateCols []string) string {
	return upsertOnConflict(d, key, updateCols)
}

func (d *PostgresDialect) Configure(_ context.Context, db *sql.DB, poolSize int) error {
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
	return nil
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		}
		return err
	}
	// Errors that crossed database/sql without the typed value keep the code
	// in their text.
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
