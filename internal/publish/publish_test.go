package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lowcode-backend/internal/metadata"
)

func bookDef() *metadata.ModelDefinition {
	return &metadata.ModelDefinition{
		Name: "Book",
		Fields: []metadata.Field{
			{Name: "title", Type: metadata.TypeString, Required: true, Unique: true},
			{Name: "pages", Type: metadata.TypeNumber},
			{Name: "ownerId", Type: metadata.TypeString},
		},
		OwnerField: "ownerId",
	}
}

func TestSchemaBlock(t *testing.T) {
	want := `model Book {
  id String @id @default(uuid())
  title String @unique
  pages Float?
  ownerId String?
  createdAt DateTime @default(now())
  updatedAt DateTime @updatedAt
}`
	if got := SchemaBlock(bookDef()); got != want {
		t.Fatalf("unexpected block:\n%s", got)
	}
}

func TestPublish_AppendsAndRunsCommand(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.prisma")
	if err := os.WriteFile(schema, []byte("datasource db {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dir, "ran")

	p := New(schema, "echo {{model}} > "+marker, time.Minute)
	if err := p.Publish(context.Background(), bookDef()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	data, _ := os.ReadFile(schema)
	if !strings.HasPrefix(string(data), "datasource db {}\n") || !strings.Contains(string(data), "model Book {") {
		t.Fatalf("schema file not appended:\n%s", data)
	}
	ran, _ := os.ReadFile(marker)
	if strings.TrimSpace(string(ran)) != "Book" {
		t.Fatalf("expected command to see model name, got %q", ran)
	}
}

func TestPublish_MissingSchemaFile(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "absent.prisma"), "", time.Minute)
	if err := p.Publish(context.Background(), bookDef()); err == nil {
		t.Fatal("expected error for missing schema file")
	}
}

func TestPublish_CommandFailure(t *testing.T) {
	p := New("", "exit 3", time.Minute)
	if err := p.Publish(context.Background(), bookDef()); err == nil {
		t.Fatal("expected command failure")
	}
}

func TestPublish_Disabled(t *testing.T) {
	p := New("", "", 0)
	if p.Enabled() {
		t.Fatal("expected publisher without file or command to be disabled")
	}
	if err := p.Publish(context.Background(), bookDef()); err != nil {
		t.Fatalf("disabled publish should be a no-op: %v", err)
	}
}
