package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lowcode-backend/internal/logging"
)

// ErrDefinitionNotFound is returned by Catalog.Read when no file exists for
// the requested model.
var ErrDefinitionNotFound = errors.New("model definition not found")

var errEmptyDefinition = errors.New("empty definition")

var definitionExts = []string{".json", ".yaml", ".yml"}

// Catalog is the on-disk set of model definitions, one file per model named
// after it. The files are the source of truth; nothing is cached.
type Catalog struct {
	dir string
}

func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the directory the catalog reads and writes.
func (c *Catalog) Dir() string {
	return c.dir
}

// LoadAll parses every definition file in the catalog directory in file
// name order. Invalid files are logged and skipped. The directory is
// created when missing.
func (c *Catalog) LoadAll() ([]*ModelDefinition, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	defs, err := c.scan(logging.Warnf)
	if err != nil {
		return nil, err
	}
	logging.Infof("loaded %d model definitions from %s", len(defs), c.dir)
	return defs, nil
}

// List is LoadAll for request paths: a missing directory is an empty
// catalog and skipped files are only logged at debug level.
func (c *Catalog) List() ([]*ModelDefinition, error) {
	defs, err := c.scan(logging.Debugf)
	if errors.Is(err, os.ErrNotExist) {
		return []*ModelDefinition{}, nil
	}
	return defs, err
}

func (c *Catalog) scan(logSkip func(format string, args ...any)) ([]*ModelDefinition, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*ModelDefinition, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		def, err := ParseFile(filepath.Join(c.dir, name))
		if err != nil {
			logSkip("skipping model file %s: %v", name, err)
			continue
		}
		if seen[def.Name] {
			logSkip("skipping model file %s: model %s already loaded", name, def.Name)
			continue
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}

// Read loads the definition for name directly from disk.
func (c *Catalog) Read(name string) (*ModelDefinition, error) {
	if !ValidIdentifier(name) {
		return nil, ErrDefinitionNotFound
	}
	for _, ext := range definitionExts {
		path := filepath.Join(c.dir, name+ext)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return ParseFile(path)
	}
	return nil, ErrDefinitionNotFound
}

// Write validates def and stores it as <name>.json, replacing any previous
// file atomically.
func (c *Catalog) Write(def *ModelDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model %s: %w", def.Name, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-"+def.Name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write model %s: %w", def.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close model %s: %w", def.Name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, def.Name+".json")); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename model %s: %w", def.Name, err)
	}
	return nil
}

// IsDefinitionFile reports whether a file name looks like a model
// definition. Hidden, temporary and editor backup files are not.
func IsDefinitionFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range definitionExts {
		if ext == e {
			return true
		}
	}
	return false
}

// NameFromPath returns the model name a definition file is stored under.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseFile reads, decodes and validates a definition file. The model name
// inside the file must match the file name.
func ParseFile(path string) (*ModelDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if want := NameFromPath(path); def.Name != want {
		return nil, fmt.Errorf("model name %q does not match file name %q", def.Name, want)
	}
	return def, nil
}

// Parse decodes a definition from JSON or, for .yaml/.yml, YAML and
// validates it.
func Parse(data []byte, ext string) (*ModelDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDefinition
	}
	var def ModelDefinition
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
