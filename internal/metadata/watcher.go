package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"lowcode-backend/internal/logging"
)

// WatchHandlers receive definition changes. Nil handlers are skipped.
type WatchHandlers struct {
	OnAdd    func(def *ModelDefinition)
	OnChange func(def *ModelDefinition)
	OnRemove func(name string)
}

// Watcher observes a definition directory and reports parsed definitions.
type Watcher struct {
	dir      string
	fs       *fsnotify.Watcher
	handlers WatchHandlers
}

// NewWatcher starts watching dir. Events are delivered once Run is called.
func NewWatcher(dir string, h WatchHandlers) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, fs: fw, handlers: h}, nil
}

// Run delivers events until ctx is cancelled, then closes the watcher.
// Handlers run on the calling goroutine, one event at a time.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	logging.Infof("watching model definitions in %s", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.Warnf("model watcher overflow, some changes may be missed: %v", err)
				continue
			}
			logging.Errorf("model watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !IsDefinitionFile(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		name := NameFromPath(ev.Name)
		logging.Infof("model file removed: %s", name)
		if w.handlers.OnRemove != nil {
			w.handlers.OnRemove(name)
		}
	case ev.Has(fsnotify.Create):
		if def := w.parse(ev.Name); def != nil && w.handlers.OnAdd != nil {
			w.handlers.OnAdd(def)
		}
	case ev.Has(fsnotify.Write):
		if def := w.parse(ev.Name); def != nil && w.handlers.OnChange != nil {
			w.handlers.OnChange(def)
		}
	}
}

// parse returns nil for files that cannot be used yet. A freshly created
// file is often empty until its first write lands, so emptiness is not
// worth a warning.
func (w *Watcher) parse(path string) *ModelDefinition {
	def, err := ParseFile(path)
	if err != nil {
		if !errors.Is(err, errEmptyDefinition) && !errors.Is(err, os.ErrNotExist) {
			logging.Warnf("skipping model file %s: %v", path, err)
		}
		return nil
	}
	return def
}
