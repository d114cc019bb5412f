package metadata

import (
	"fmt"
	"time"
)

// Field types a model definition may declare.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
)

type Field struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// dateLayouts are tried in order when a date arrives as a string.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats accepted on input and returned by SQLite.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func validType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// Coerce checks v against the field type and returns the value to bind.
// JSON numbers arrive as float64 and YAML integers as int; both are numbers.
// Dates are returned as time.Time. A nil v stays nil.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case string:
			t, err := ParseDate(d)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			return t, nil
		}
	}
	return nil, fmt.Errorf("field %q expects %s, got %T", f.Name, f.Type, v)
}
