package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lowcode-backend/internal/metadata"
)

// Migrator creates model tables. It never alters a table that already
// exists, so later field changes need a manual migration.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// EnsureTable creates the table for def if it does not exist yet.
func (m *Migrator) EnsureTable(ctx context.Context, def *metadata.ModelDefinition) error {
	conn, err := m.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, m.TableDDL(def)); err != nil {
		return fmt.Errorf("create table %s: %w", def.Name, err)
	}
	return nil
}

// TableDDL returns the CREATE TABLE statement for def.
func (m *Migrator) TableDDL(def *metadata.ModelDefinition) string {
	return TableDDL(m.store.Dialect, def)
}

// TableDDL returns the CREATE TABLE statement for def in the given dialect.
func TableDDL(d Dialect, def *metadata.ModelDefinition) string {
	cols := make([]string, 0, len(def.Fields)+3)
	cols = append(cols, d.QuoteIdent(metadata.ColumnID)+" VARCHAR(36) NOT NULL PRIMARY KEY")
	for _, f := range def.Fields {
		cols = append(cols, buildColumnDef(d, f))
	}
	ts := d.TimestampType()
	cols = append(cols,
		fmt.Sprintf("%s %s NOT NULL DEFAULT %s", d.QuoteIdent(metadata.ColumnCreatedAt), ts, d.NowExpr()),
		strings.TrimSpace(fmt.Sprintf("%s %s NOT NULL DEFAULT %s %s", d.QuoteIdent(metadata.ColumnUpdatedAt), ts, d.NowExpr(), d.OnUpdateNow())),
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.QuoteIdent(def.Name), strings.Join(cols, ",\n  "))
}

func buildColumnDef(d Dialect, f metadata.Field) string {
	col := d.QuoteIdent(f.Name) + " " + d.ColumnType(f)
	if f.Required {
		col += " NOT NULL"
	}
	if f.Unique {
		col += " UNIQUE"
	}
	if lit, ok := defaultLiteral(f); ok {
		col += " DEFAULT " + lit
	}
	return col
}

// defaultLiteral renders a field default as a SQL literal. Defaults that do
// not match the field type are dropped; definitions are validated before
// they get here.
func defaultLiteral(f metadata.Field) (string, bool) {
	v, err := f.Coerce(f.Default)
	if err != nil || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return quoteLiteral(val), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case bool:
		if val {
			return "TRUE", true
		}
		return "FALSE", true
	case time.Time:
		return quoteLiteral(val.UTC().Format("2006-01-02 15:04:05")), true
	}
	return "", false
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
