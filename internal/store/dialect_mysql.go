package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"lowcode-backend/internal/metadata"
)

// MySQLDialect implements Dialect for MySQL and MariaDB via go-sql-driver/mysql.
type MySQLDialect struct{}

const mysqlDuplicateEntry = 1062

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) Placeholder(int) string { return "?" }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{placeholder: d.Placeholder}
}

func (d *MySQLDialect) QuoteIdent(name string) string { return quoteWith("`", name) }
func (d *MySQLDialect) TimestampType() string         { return "DATETIME(3)" }
func (d *MySQLDialect) NowExpr() string               { return "CURRENT_TIMESTAMP(3)" }
func (d *MySQLDialect) OnUpdateNow() string           { return "ON UPDATE CURRENT_TIMESTAMP(3)" }
func (d *MySQLDialect) NeedsBoolFix() bool            { return true }
func (d *MySQLDialect) TimeParam(t time.Time) any     { return t.UTC() }

// ColumnType uses VARCHAR(191) for unique strings because MySQL cannot
// index an unbounded TEXT column.
func (d *MySQLDialect) ColumnType(f metadata.Field) string {
	switch f.Type {
	case metadata.TypeNumber:
		return "DOUBLE"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	case metadata.TypeDate:
		return "DATETIME(3)"
	default:
		if f.Unique {
			return "VARCHAR(191)"
		}
		return "TEXT"
	}
}

func (d *MySQLDialect) UpsertClause(_ string, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := d.QuoteIdent(c)
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (d *MySQLDialect) Configure(_ context.Context, db *sql.DB, poolSize int) error {
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	return nil
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
