package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lowcode-backend/internal/metadata"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres", "sqlite" or "mysql".
	Name() string

	// DriverName returns the database/sql driver name ("pgx", "sqlite" or "mysql").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// ColumnType maps a model field to the database DDL type.
	ColumnType(f metadata.Field) string

	// TimestampType is the column type used for createdAt/updatedAt.
	TimestampType() string

	// NowExpr returns the SQL expression for the current timestamp, usable
	// as a column DEFAULT.
	NowExpr() string

	// OnUpdateNow returns the column clause that refreshes a timestamp on
	// UPDATE, or empty string when the database has none.
	OnUpdateNow() string

	// TimeParam converts a time into the value bound for timestamp columns.
	TimeParam(t time.Time) any

	// UpsertClause returns the conflict clause appended to an INSERT so that
	// a row with the same key has updateCols overwritten instead.
	UpsertClause(key string, updateCols []string) string

	// Configure applies connection pool settings after the pool is opened.
	Configure(ctx context.Context, db *sql.DB, poolSize int) error

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers.
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return &PostgresDialect{}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type paramBuilder struct {
	params      []any
	placeholder func(int) string
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return p.placeholder(len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }

// quoteWith doubles any embedded quote character.
func quoteWith(q, name string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// upsertOnConflict is the ON CONFLICT form shared by PostgreSQL and SQLite.
func upsertOnConflict(d Dialect, key string, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := d.QuoteIdent(c)
		sets[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", d.QuoteIdent(key), strings.Join(sets, ", "))
}
