package metadata

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func postModel() *ModelDefinition {
	return &ModelDefinition{
		Name: "Post",
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "score", Type: TypeNumber, Default: float64(0)},
			{Name: "published", Type: TypeBoolean},
			{Name: "ownerId", Type: TypeString},
		},
		OwnerField: "ownerId",
		RBAC: map[string][]Operation{
			"Admin":  {OpAll},
			"Editor": {OpCreate, OpRead, OpUpdate},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := postModel().Validate(); err != nil {
		t.Fatalf("expected valid definition, got %v", err)
	}
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ModelDefinition)
		want   string
	}{
		{"missing name", func(m *ModelDefinition) { m.Name = "" }, "name is required"},
		{"bad name", func(m *ModelDefinition) { m.Name = "1post" }, "must start with a letter"},
		{"path name", func(m *ModelDefinition) { m.Name = "../etc" }, "must start with a letter"},
		{"reserved field", func(m *ModelDefinition) { m.Fields[0].Name = "createdAt" }, "reserved"},
		{"duplicate field", func(m *ModelDefinition) { m.Fields[1].Name = "title" }, "more than once"},
		{"unknown type", func(m *ModelDefinition) { m.Fields[1].Type = "money" }, "unknown type"},
		{"bad default", func(m *ModelDefinition) { m.Fields[1].Default = "zero" }, "default does not match"},
		{"missing owner", func(m *ModelDefinition) { m.OwnerField = "author" }, "not a declared field"},
		{"bad op", func(m *ModelDefinition) { m.RBAC["Viewer"] = []Operation{"publish"} }, "unknown operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := postModel()
			tt.mutate(m)
			err := m.Validate()
			var defErr *DefinitionError
			if !errors.As(err, &defErr) {
				t.Fatalf("expected *DefinitionError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestPermits(t *testing.T) {
	m := postModel()
	for _, op := range []Operation{OpCreate, OpRead, OpUpdate, OpDelete} {
		if !m.Permits("Admin", op) {
			t.Errorf("all should grant %s", op)
		}
	}
	if m.Permits("Editor", OpDelete) {
		t.Error("Editor must not delete")
	}
	if !m.Permits("Editor", OpUpdate) {
		t.Error("Editor should update")
	}
	if m.Permits("Viewer", OpRead) {
		t.Error("unlisted role must be denied")
	}
	if m.Permits("admin", OpRead) {
		t.Error("role names are case sensitive")
	}
}

func TestColumns(t *testing.T) {
	got := strings.Join(postModel().Columns(), ",")
	want := "id,title,score,published,ownerId,createdAt,updatedAt"
	if got != want {
		t.Fatalf("columns = %s, want %s", got, want)
	}
}

func TestCoerce(t *testing.T) {
	num := Field{Name: "n", Type: TypeNumber}
	if v, err := num.Coerce(3); err != nil || v != float64(3) {
		t.Fatalf("int should coerce to float64, got %v %v", v, err)
	}
	if _, err := num.Coerce("3"); err == nil {
		t.Fatal("string must not pass as number")
	}

	date := Field{Name: "d", Type: TypeDate}
	v, err := date.Coerce("2024-05-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.(time.Time); got.Year() != 2024 || got.Month() != time.May {
		t.Fatalf("unexpected date %v", got)
	}
	if _, err := date.Coerce("yesterday"); err == nil {
		t.Fatal("expected invalid date error")
	}

	if v, err := (Field{Name: "b", Type: TypeBoolean}).Coerce(nil); err != nil || v != nil {
		t.Fatalf("nil should pass through, got %v %v", v, err)
	}
}

func TestIdentity(t *testing.T) {
	var anon *Identity
	if anon.IsAdmin() {
		t.Fatal("anonymous is not admin")
	}
	if anon.RoleOrDefault() != DefaultRole {
		t.Fatalf("anonymous role = %s", anon.RoleOrDefault())
	}
	admin := &Identity{UserID: "u1", Role: AdminRole}
	if !admin.IsAdmin() {
		t.Fatal("Admin role should be admin")
	}
}

func TestEqual(t *testing.T) {
	if !postModel().Equal(postModel()) {
		t.Fatal("identical definitions should be equal")
	}

	reordered := postModel()
	reordered.RBAC["Editor"] = []Operation{OpRead, OpCreate, OpUpdate}
	if postModel().Equal(reordered) {
		t.Fatal("operation lists are compared in order")
	}

	noRole := postModel()
	noRole.RBAC["Viewer"] = nil
	withRole := postModel()
	withRole.RBAC["Viewer"] = []Operation{}
	if !noRole.Equal(withRole) {
		t.Fatal("nil and empty operation lists should be equal")
	}

	other := postModel()
	other.Fields[1].Default = float64(1)
	if postModel().Equal(other) {
		t.Fatal("changed default must be detected")
	}
}
