package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lowcode-backend/internal/config"
	"lowcode-backend/internal/metadata"
)

func postDef() *metadata.ModelDefinition {
	return &metadata.ModelDefinition{
		Name: "Post",
		Fields: []metadata.Field{
			{Name: "title", Type: metadata.TypeString, Required: true, Unique: true},
			{Name: "score", Type: metadata.TypeNumber, Default: float64(1.5)},
			{Name: "published", Type: metadata.TypeBoolean, Default: false},
			{Name: "note", Type: metadata.TypeString, Default: "it's"},
			{Name: "due", Type: metadata.TypeDate},
		},
	}
}

func testSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestTableDDL_Postgres(t *testing.T) {
	ddl := TableDDL(&PostgresDialect{}, postDef())
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "Post" (`,
		`"id" VARCHAR(36) NOT NULL PRIMARY KEY`,
		`"title" TEXT NOT NULL UNIQUE`,
		`"score" DOUBLE PRECISION DEFAULT 1.5`,
		`"published" BOOLEAN DEFAULT FALSE`,
		`"note" TEXT DEFAULT 'it''s'`,
		`"due" TIMESTAMPTZ`,
		`"createdAt" TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP`,
		`"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("missing %q in:\n%s", want, ddl)
		}
	}
}

func TestTableDDL_MySQL(t *testing.T) {
	ddl := TableDDL(&MySQLDialect{}, postDef())
	for _, want := range []string{
		"`title` VARCHAR(191) NOT NULL UNIQUE",
		"`score` DOUBLE DEFAULT 1.5",
		"`due` DATETIME(3)",
		"`updatedAt` DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("missing %q in:\n%s", want, ddl)
		}
	}
}

func TestEnsureTable_SQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testSQLiteStore(t)
	m := NewMigrator(s)

	if err := m.EnsureTable(ctx, postDef()); err != nil {
		t.Fatalf("first EnsureTable: %v", err)
	}
	if err := m.EnsureTable(ctx, postDef()); err != nil {
		t.Fatalf("second EnsureTable: %v", err)
	}

	insert := "INSERT INTO `Post` (`id`, `title`) VALUES (?1, ?2)"
	if _, err := Exec(ctx, s.DB, insert, "a", "same"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := Exec(ctx, s.DB, insert, "b", "same")
	if !errors.Is(MapError(s.Dialect, err), ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	row, err := QueryRow(ctx, s.DB, "SELECT `score`, `published` FROM `Post` WHERE `id` = ?1", "a")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if row["score"] != 1.5 {
		t.Fatalf("default score not applied: %#v", row["score"])
	}
}

func TestEnsureTable_NeverAlters(t *testing.T) {
	ctx := context.Background()
	s := testSQLiteStore(t)
	m := NewMigrator(s)

	if err := m.EnsureTable(ctx, postDef()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	changed := postDef()
	changed.Fields = append(changed.Fields, metadata.Field{Name: "extra", Type: metadata.TypeString})
	if err := m.EnsureTable(ctx, changed); err != nil {
		t.Fatalf("EnsureTable changed: %v", err)
	}
	if _, err := QueryRows(ctx, s.DB, "SELECT `extra` FROM `Post`"); err == nil {
		t.Fatal("existing table must not gain new columns")
	}
}
