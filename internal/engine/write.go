package engine

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/store"
)

const maxIDLength = 36

// PlanWrite checks a request body against def and returns the coerced
// column values to write. Only id (on create) and declared fields are
// accepted. When creating, every required field without a default must
// be present and non-null.
func PlanWrite(def *metadata.ModelDefinition, body map[string]any, creating bool) (map[string]any, []ErrorDetail) {
	values := make(map[string]any, len(body))
	var errs []ErrorDetail

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := body[key]
		switch {
		case key == metadata.ColumnID:
			if !creating {
				errs = append(errs, ErrorDetail{Field: key, Rule: "immutable", Message: "id cannot be changed"})
				continue
			}
			id, ok := raw.(string)
			if !ok || id == "" || len(id) > maxIDLength {
				errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: fmt.Sprintf("id must be a non-empty string of at most %d characters", maxIDLength)})
				continue
			}
			values[key] = id
		case metadata.IsReserved(key):
			errs = append(errs, ErrorDetail{Field: key, Rule: "reserved", Message: key + " is managed by the server"})
		default:
			f := def.GetField(key)
			if f == nil {
				errs = append(errs, ErrorDetail{Field: key, Rule: "unknown", Message: "unknown field " + key})
				continue
			}
			v, err := f.Coerce(raw)
			if err != nil {
				errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: err.Error()})
				continue
			}
			if v == nil && f.Required {
				errs = append(errs, ErrorDetail{Field: key, Rule: "required", Message: key + " is required"})
				continue
			}
			values[key] = v
		}
	}

	if creating {
		for _, f := range def.Fields {
			if !f.Required || f.Default != nil || f.Name == def.OwnerField {
				continue
			}
			if _, ok := body[f.Name]; !ok {
				errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: f.Name + " is required"})
			}
		}
	}
	return values, errs
}

// bindValues converts coerced values into driver parameters.
func bindValues(d store.Dialect, values map[string]any) {
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			values[k] = d.TimeParam(t)
		}
	}
}

// normalizeRows converts driver values back to the declared field types.
// SQLite returns timestamps as text and MySQL may return numbers as text.
func normalizeRows(d store.Dialect, def *metadata.ModelDefinition, rows []map[string]any) {
	var boolFields []string
	for _, f := range def.Fields {
		if f.Type == metadata.TypeBoolean {
			boolFields = append(boolFields, f.Name)
		}
	}
	if d.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFields)
	}

	for _, row := range rows {
		for _, col := range []string{metadata.ColumnCreatedAt, metadata.ColumnUpdatedAt} {
			row[col] = toTime(row[col])
		}
		for _, f := range def.Fields {
			switch f.Type {
			case metadata.TypeDate:
				row[f.Name] = toTime(row[f.Name])
			case metadata.TypeNumber:
				row[f.Name] = toNumber(row[f.Name])
			}
		}
	}
}

func toTime(v any) any {
	if s, ok := v.(string); ok {
		if t, err := metadata.ParseDate(s); err == nil {
			return t
		}
	}
	return v
}

func toNumber(v any) any {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return v
}
