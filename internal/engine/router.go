package engine

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"lowcode-backend/internal/metadata"
)

// Action names one of the generated CRUD endpoints.
type Action string

const (
	ActionList   Action = "list"
	ActionGet    Action = "get"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Guard runs before every generated endpoint. A non-nil error stops the
// request before the handler runs.
type Guard func(c *fiber.Ctx, model string) error

// RouteSet is the mounted set of endpoints for one model version.
type RouteSet struct {
	Model    string
	Version  uint64
	Def      *metadata.ModelDefinition
	handlers map[Action]func(*fiber.Ctx) error
}

// RouteTable maps model names to their current route set. Mount and
// Unmount swap an immutable snapshot, so a request sees either the old or
// the new set for a model and never two at once.
type RouteTable struct {
	mu     sync.Mutex
	sets   atomic.Pointer[map[string]*RouteSet]
	crud   *Handler
	guards []Guard
}

func NewRouteTable(crud *Handler, guards ...Guard) *RouteTable {
	t := &RouteTable{crud: crud, guards: guards}
	empty := map[string]*RouteSet{}
	t.sets.Store(&empty)
	return t
}

func (t *RouteTable) newRouteSet(def *metadata.ModelDefinition, version uint64) *RouteSet {
	bind := func(fn func(*fiber.Ctx, *metadata.ModelDefinition) error) func(*fiber.Ctx) error {
		return func(c *fiber.Ctx) error { return fn(c, def) }
	}
	return &RouteSet{
		Model:   def.Name,
		Version: version,
		Def:     def,
		handlers: map[Action]func(*fiber.Ctx) error{
			ActionList:   bind(t.crud.List),
			ActionGet:    bind(t.crud.GetByID),
			ActionCreate: bind(t.crud.Create),
			ActionUpdate: bind(t.crud.Update),
			ActionDelete: bind(t.crud.Delete),
		},
	}
}

// Mount installs the route set for def, replacing the previous one for the
// same model.
func (t *RouteTable) Mount(def *metadata.ModelDefinition, version uint64) *RouteSet {
	rs := t.newRouteSet(def, version)
	t.swap(func(next map[string]*RouteSet) { next[def.Name] = rs })
	return rs
}

// Unmount removes the route set for name. It reports whether one existed.
func (t *RouteTable) Unmount(name string) bool {
	if t.Lookup(name) == nil {
		return false
	}
	t.swap(func(next map[string]*RouteSet) { delete(next, name) })
	return true
}

func (t *RouteTable) swap(edit func(map[string]*RouteSet)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := *t.sets.Load()
	next := make(map[string]*RouteSet, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	edit(next)
	t.sets.Store(&next)
}

// Lookup returns the current route set for name, or nil.
func (t *RouteTable) Lookup(name string) *RouteSet {
	return (*t.sets.Load())[name]
}

// Models returns the names of all mounted models, sorted.
func (t *RouteTable) Models() []string {
	sets := *t.sets.Load()
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch resolves :model against the current snapshot, runs the guards
// and then the action's handler.
func (t *RouteTable) Dispatch(action Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("model")
		rs := t.Lookup(name)
		if rs == nil {
			return UnknownModelError(name)
		}
		for _, g := range t.guards {
			if err := g(c, name); err != nil {
				return err
			}
		}
		return rs.handlers[action](c)
	}
}

// RegisterDynamicRoutes mounts the dispatcher under prefix. Route sets are
// added and replaced in the table, never on the router itself.
func RegisterDynamicRoutes(app fiber.Router, prefix string, t *RouteTable) {
	api := app.Group(prefix)

	api.Get("/:model", t.Dispatch(ActionList))
	api.Get("/:model/:id", t.Dispatch(ActionGet))
	api.Post("/:model", t.Dispatch(ActionCreate))
	api.Put("/:model/:id", t.Dispatch(ActionUpdate))
	api.Patch("/:model/:id", t.Dispatch(ActionUpdate))
	api.Delete("/:model/:id", t.Dispatch(ActionDelete))
}
