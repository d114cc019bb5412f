package engine

import (
	"context"
	"sync"
	"time"

	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
)

const schemaSyncTimeout = 30 * time.Second

// SchemaApplier creates the storage for a model.
type SchemaApplier interface {
	EnsureTable(ctx context.Context, def *metadata.ModelDefinition) error
}

// Registrar keeps the registry, the storage schema and the route table in
// step when definitions are published or change on disk.
type Registrar struct {
	registry *metadata.Registry
	routes   *RouteTable
	schema   SchemaApplier
	wg       sync.WaitGroup

	mu    sync.Mutex
	syncs map[string]*schemaSync
}

// schemaSync is the latest schema synthesis started for a model.
type schemaSync struct {
	done chan struct{}
	err  error
}

func (s *schemaSync) wait() <-chan error {
	result := make(chan error, 1)
	go func() {
		<-s.done
		result <- s.err
	}()
	return result
}

func NewRegistrar(reg *metadata.Registry, routes *RouteTable, schema SchemaApplier) *Registrar {
	return &Registrar{registry: reg, routes: routes, schema: schema, syncs: map[string]*schemaSync{}}
}

// Register stores def, starts schema synthesis in the background and
// mounts its routes. The returned channel yields the schema result once.
// A definition identical to the mounted one changes nothing, reports
// changed=false and yields the result of the synthesis already started.
func (r *Registrar) Register(def *metadata.ModelDefinition) (done <-chan error, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, changed := r.registry.Put(def)
	if rs := r.routes.Lookup(def.Name); !changed && rs != nil && rs.Version == entry.Version {
		logging.Debugf("model %s unchanged (version %d)", def.Name, entry.Version)
		if st := r.syncs[def.Name]; st != nil {
			return st.wait(), false
		}
		result := make(chan error, 1)
		result <- nil
		return result, false
	}

	st := &schemaSync{done: make(chan struct{})}
	r.syncs[def.Name] = st
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), schemaSyncTimeout)
		defer cancel()
		st.err = r.schema.EnsureTable(ctx, def)
		if st.err != nil {
			logging.Errorf("schema sync for %s failed: %v", def.Name, st.err)
		}
		close(st.done)
	}()

	r.routes.Mount(def, entry.Version)
	logging.Infof("mounted routes for %s (version %d)", def.Name, entry.Version)
	return st.wait(), true
}

// Unregister removes name from the registry and unmounts its routes.
func (r *Registrar) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.syncs, name)
	removed := r.registry.Remove(name)
	unmounted := r.routes.Unmount(name)
	if removed || unmounted {
		logging.Infof("unmounted routes for %s", name)
	}
	return removed || unmounted
}

// Wait blocks until every schema synthesis started so far has finished.
func (r *Registrar) Wait() {
	r.wg.Wait()
}

// WatchHandlers adapts the registrar to definition watcher callbacks.
// Removed files only unregister the model when unmountOnRemove is set.
func (r *Registrar) WatchHandlers(unmountOnRemove bool) metadata.WatchHandlers {
	register := func(def *metadata.ModelDefinition) { r.Register(def) }
	return metadata.WatchHandlers{
		OnAdd:    register,
		OnChange: register,
		OnRemove: func(name string) {
			if !unmountOnRemove {
				logging.Infof("definition for %s removed; routes stay mounted", name)
				return
			}
			r.Unregister(name)
		},
	}
}
