package metadata

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Operation is a permission granted to a role in a model's rbac map.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpAll    Operation = "all"
)

// Column names every record carries in addition to its declared fields.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "createdAt"
	ColumnUpdatedAt = "updatedAt"
)

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s can be used as a model or field name.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// IsReserved reports whether name is a system-managed column.
func IsReserved(name string) bool {
	switch name {
	case ColumnID, ColumnCreatedAt, ColumnUpdatedAt:
		return true
	}
	return false
}

type ModelDefinition struct {
	Name       string                 `json:"name" yaml:"name"`
	Fields     []Field                `json:"fields" yaml:"fields"`
	OwnerField string                 `json:"ownerField,omitempty" yaml:"ownerField,omitempty"`
	RBAC       map[string][]Operation `json:"rbac,omitempty" yaml:"rbac,omitempty"`
}

// DefinitionError lists every problem found while validating a definition.
type DefinitionError struct {
	Model    string
	Problems []string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid model definition %q: %s", e.Model, strings.Join(e.Problems, "; "))
}

// GetField returns a pointer to the field with the given name, or nil.
func (m *ModelDefinition) GetField(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the model declares a field with the given name.
func (m *ModelDefinition) HasField(name string) bool {
	return m.GetField(name) != nil
}

// Columns returns every column of the model's table in table order.
func (m *ModelDefinition) Columns() []string {
	cols := make([]string, 0, len(m.Fields)+3)
	cols = append(cols, ColumnID)
	for _, f := range m.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, ColumnCreatedAt, ColumnUpdatedAt)
}

// Permits reports whether role holds op (or "all") in the rbac map.
func (m *ModelDefinition) Permits(role string, op Operation) bool {
	for _, granted := range m.RBAC[role] {
		if granted == OpAll || granted == op {
			return true
		}
	}
	return false
}

// Equal reports whether two definitions describe the same model. Nil and
// empty field lists, rbac maps and operation lists compare equal, since they
// encode the same way on disk.
func (m *ModelDefinition) Equal(other *ModelDefinition) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Name != other.Name || m.OwnerField != other.OwnerField {
		return false
	}
	if len(m.Fields) != len(other.Fields) || len(m.RBAC) != len(other.RBAC) {
		return false
	}
	for i := range m.Fields {
		if !reflect.DeepEqual(m.Fields[i], other.Fields[i]) {
			return false
		}
	}
	for role, ops := range m.RBAC {
		theirs, ok := other.RBAC[role]
		if !ok || len(ops) != len(theirs) {
			return false
		}
		for i := range ops {
			if ops[i] != theirs[i] {
				return false
			}
		}
	}
	return true
}

// Validate checks names, field types, defaults, the owner field and the
// rbac map. It returns a *DefinitionError listing all problems.
func (m *ModelDefinition) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.Name == "" {
		add("name is required")
	} else if !ValidIdentifier(m.Name) {
		add("name %q must start with a letter and contain only letters, digits and underscores", m.Name)
	}

	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		switch {
		case f.Name == "":
			add("fields[%d]: name is required", i)
			continue
		case !ValidIdentifier(f.Name):
			add("field %q: invalid name", f.Name)
		case IsReserved(f.Name):
			add("field %q: name is reserved", f.Name)
		}
		if seen[f.Name] {
			add("field %q: declared more than once", f.Name)
		}
		seen[f.Name] = true

		if !validType(f.Type) {
			add("field %q: unknown type %q", f.Name, f.Type)
			continue
		}
		if f.Default != nil {
			if _, err := f.Coerce(f.Default); err != nil {
				add("field %q: default does not match type %s", f.Name, f.Type)
			}
		}
	}

	if m.OwnerField != "" {
		if of := m.GetField(m.OwnerField); of == nil {
			add("ownerField %q is not a declared field", m.OwnerField)
		} else if of.Type != TypeString {
			add("ownerField %q must be a string field", m.OwnerField)
		}
	}

	for role, ops := range m.RBAC {
		if role == "" {
			add("rbac: empty role name")
		}
		for _, op := range ops {
			switch op {
			case OpCreate, OpRead, OpUpdate, OpDelete, OpAll:
			default:
				add("rbac %q: unknown operation %q", role, op)
			}
		}
	}

	if len(problems) > 0 {
		return &DefinitionError{Model: m.Name, Problems: problems}
	}
	return nil
}
