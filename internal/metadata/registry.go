package metadata

import (
	"sync"
	"sync/atomic"
)

// Entry is a registered definition together with its version. The version
// increases every time the definition for that name is replaced.
type Entry struct {
	Def     *ModelDefinition
	Version uint64
}

// Registry holds the live set of model definitions. Readers load an
// immutable snapshot without locking; writers copy, modify and swap it
// under mu.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[map[string]Entry]
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]Entry{}
	r.snap.Store(&empty)
	return r
}

func (r *Registry) current() map[string]Entry {
	return *r.snap.Load()
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.current()[name]
	return e, ok
}

// Put registers def, replacing any previous definition with the same name.
// When the stored definition is identical nothing changes and changed is
// false.
func (r *Registry) Put(def *ModelDefinition) (entry Entry, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	prev, exists := old[def.Name]
	if exists && prev.Def.Equal(def) {
		return prev, false
	}

	next := make(map[string]Entry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	entry = Entry{Def: def, Version: prev.Version + 1}
	next[def.Name] = entry
	r.snap.Store(&next)
	return entry, true
}

// Remove drops name from the registry. It reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	if _, ok := old[name]; !ok {
		return false
	}
	next := make(map[string]Entry, len(old))
	for k, v := range old {
		if k != name {
			next[k] = v
		}
	}
	r.snap.Store(&next)
	return true
}
