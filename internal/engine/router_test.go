package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowcode-backend/internal/metadata"
)

type fakeSchema struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSchema) EnsureTable(_ context.Context, def *metadata.ModelDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, def.Name)
	return f.err
}

func (f *fakeSchema) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRouteTable_MountReplacesInPlace(t *testing.T) {
	table := NewRouteTable(NewHandler(nil))

	first := table.Mount(postDef(), 1)
	changed := postDef()
	changed.Fields = append(changed.Fields, metadata.Field{Name: "body", Type: metadata.TypeString})
	second := table.Mount(changed, 2)

	got := table.Lookup("Post")
	require.NotNil(t, got)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, []string{"Post"}, table.Models())
}

func TestRouteTable_Unmount(t *testing.T) {
	table := NewRouteTable(NewHandler(nil))
	table.Mount(postDef(), 1)

	assert.True(t, table.Unmount("Post"))
	assert.False(t, table.Unmount("Post"))
	assert.Nil(t, table.Lookup("Post"))
	assert.Empty(t, table.Models())
}

func TestRegistrar_SkipsIdenticalDefinitions(t *testing.T) {
	schema := &fakeSchema{}
	table := NewRouteTable(NewHandler(nil))
	r := NewRegistrar(metadata.NewRegistry(), table, schema)

	done, changed := r.Register(postDef())
	require.True(t, changed)
	require.NoError(t, <-done)

	done, changed = r.Register(postDef())
	assert.False(t, changed)
	assert.NoError(t, <-done)
	r.Wait()
	assert.Equal(t, 1, schema.count())

	changedDef := postDef()
	changedDef.Fields[0].Unique = true
	_, changed = r.Register(changedDef)
	assert.True(t, changed)
	r.Wait()
	assert.Equal(t, uint64(2), table.Lookup("Post").Version)
	assert.Equal(t, 2, schema.count())
}

func TestRegistrar_SchemaFailureStillMounts(t *testing.T) {
	schema := &fakeSchema{err: errors.New("db down")}
	table := NewRouteTable(NewHandler(nil))
	r := NewRegistrar(metadata.NewRegistry(), table, schema)

	done, _ := r.Register(postDef())
	assert.EqualError(t, <-done, "db down")
	assert.NotNil(t, table.Lookup("Post"))
}

func TestRegistrar_WatchHandlersRemove(t *testing.T) {
	table := NewRouteTable(NewHandler(nil))
	reg := metadata.NewRegistry()
	r := NewRegistrar(reg, table, &fakeSchema{})

	h := r.WatchHandlers(false)
	h.OnAdd(postDef())
	r.Wait()
	h.OnRemove("Post")
	assert.NotNil(t, table.Lookup("Post"), "removal is a no-op by default")

	h = r.WatchHandlers(true)
	h.OnRemove("Post")
	assert.Nil(t, table.Lookup("Post"))
	_, ok := reg.Get("Post")
	assert.False(t, ok)
}

func TestRouteTable_ConcurrentLookupDuringMount(t *testing.T) {
	table := NewRouteTable(NewHandler(nil))
	table.Mount(postDef(), 1)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rs := table.Lookup("Post")
				if rs == nil || rs.Def == nil || len(rs.handlers) != 5 {
					t.Errorf("saw incomplete route set: %+v", rs)
					return
				}
			}
		}()
	}
	for v := uint64(2); v < 200; v++ {
		table.Mount(postDef(), v)
	}
	close(stop)
	wg.Wait()
}

func TestRegistrar_RepeatedRegisterSharesSchemaResult(t *testing.T) {
	schema := &fakeSchema{err: errors.New("no such database")}
	r := NewRegistrar(metadata.NewRegistry(), NewRouteTable(NewHandler(nil)), schema)

	first, _ := r.Register(postDef())
	second, changed := r.Register(postDef())
	assert.False(t, changed)
	assert.Error(t, <-first)
	assert.Error(t, <-second)
	assert.Equal(t, 1, schema.count())
}
