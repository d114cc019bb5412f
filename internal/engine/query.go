package engine

import (
	"fmt"
	"strings"

	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/store"
)

// ListLimit caps the number of rows a list request returns.
const ListLimit = 100

func selectColumns(d store.Dialect, def *metadata.ModelDefinition) string {
	cols := def.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// BuildListSQL selects up to ListLimit rows in storage order.
func BuildListSQL(d store.Dialect, def *metadata.ModelDefinition) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", selectColumns(d, def), d.QuoteIdent(def.Name), ListLimit)
}

func BuildSelectByIDSQL(d store.Dialect, def *metadata.ModelDefinition, id string) (string, []any) {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		selectColumns(d, def), d.QuoteIdent(def.Name), d.QuoteIdent(metadata.ColumnID), pb.Add(id))
	return sql, pb.Params()
}

// BuildInsertSQL inserts the columns present in values, in table order.
// Keys that are not columns of def are ignored.
func BuildInsertSQL(d store.Dialect, def *metadata.ModelDefinition, values map[string]any) (string, []any) {
	pb := d.NewParamBuilder()
	var cols, phs []string
	for _, col := range def.Columns() {
		v, ok := values[col]
		if !ok {
			continue
		}
		cols = append(cols, d.QuoteIdent(col))
		phs = append(phs, pb.Add(v))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(def.Name), strings.Join(cols, ", "), strings.Join(phs, ", "))
	return sql, pb.Params()
}

// BuildUpdateSQL sets the columns present in values, in table order. The
// id column is never updated.
func BuildUpdateSQL(d store.Dialect, def *metadata.ModelDefinition, id string, values map[string]any) (string, []any) {
	pb := d.NewParamBuilder()
	var sets []string
	for _, col := range def.Columns() {
		if col == metadata.ColumnID {
			continue
		}
		v, ok := values[col]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent(col), pb.Add(v)))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.QuoteIdent(def.Name), strings.Join(sets, ", "), d.QuoteIdent(metadata.ColumnID), pb.Add(id))
	return sql, pb.Params()
}

func BuildDeleteSQL(d store.Dialect, def *metadata.ModelDefinition, id string) (string, []any) {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.QuoteIdent(def.Name), d.QuoteIdent(metadata.ColumnID), pb.Add(id))
	return sql, pb.Params()
}
