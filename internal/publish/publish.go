package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
)

// Publisher hands a freshly published definition to the external schema
// tooling: it appends a model block to a schema file and runs a command.
// Either step is skipped when not configured.
type Publisher struct {
	mu         sync.Mutex
	schemaFile string
	command    string
	timeout    time.Duration
}

func New(schemaFile, command string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Publisher{schemaFile: schemaFile, command: command, timeout: timeout}
}

// Enabled reports whether publishing does anything beyond the catalog write.
func (p *Publisher) Enabled() bool {
	return p != nil && (p.schemaFile != "" || p.command != "")
}

// Publish appends the schema block and runs the configured command.
// Calls are serialized so blocks are never interleaved.
func (p *Publisher) Publish(ctx context.Context, def *metadata.ModelDefinition) error {
	if !p.Enabled() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.schemaFile != "" {
		if err := p.appendBlock(def); err != nil {
			return err
		}
	}
	if p.command != "" {
		if err := p.run(ctx, def.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) appendBlock(def *metadata.ModelDefinition) error {
	f, err := os.OpenFile(p.schemaFile, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + SchemaBlock(def) + "\n"); err != nil {
		return fmt.Errorf("append schema block: %w", err)
	}
	return nil
}

func (p *Publisher) run(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmdline := strings.ReplaceAll(p.command, "{{model}}", model)
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.Infof("publish %s: running %q", model, cmdline)
	if err := cmd.Run(); err != nil {
		logging.Errorf("publish %s: command failed: %v\n%s", model, err, out.String())
		return fmt.Errorf("publish command: %w", err)
	}
	if out.Len() > 0 {
		logging.Debugf("publish %s output:\n%s", model, out.String())
	}
	return nil
}

// SchemaBlock renders def as a Prisma model block.
func SchemaBlock(def *metadata.ModelDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "model %s {\n", def.Name)
	b.WriteString("  id String @id @default(uuid())\n")
	if def.OwnerField != "" && !def.HasField(def.OwnerField) {
		fmt.Fprintf(&b, "  %s String\n", def.OwnerField)
	}
	for _, f := range def.Fields {
		line := "  " + f.Name + " " + prismaType(f.Type)
		if !f.Required {
			line += "?"
		}
		if f.Unique {
			line += " @unique"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("  createdAt DateTime @default(now())\n")
	b.WriteString("  updatedAt DateTime @updatedAt\n")
	b.WriteString("}")
	return b.String()
}

func prismaType(t string) string {
	switch t {
	case metadata.TypeNumber:
		return "Float"
	case metadata.TypeBoolean:
		return "Boolean"
	case metadata.TypeDate:
		return "DateTime"
	default:
		return "String"
	}
}
