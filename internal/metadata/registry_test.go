package metadata

import (
	"sync"
	"testing"
)

func TestRegistry_PutVersions(t *testing.T) {
	reg := NewRegistry()

	e, changed := reg.Put(postModel())
	if !changed || e.Version != 1 {
		t.Fatalf("first put: changed=%v version=%d", changed, e.Version)
	}

	e, changed = reg.Put(postModel())
	if changed || e.Version != 1 {
		t.Fatalf("identical put should be a no-op: changed=%v version=%d", changed, e.Version)
	}

	m := postModel()
	m.Fields = append(m.Fields, Field{Name: "body", Type: TypeString})
	e, changed = reg.Put(m)
	if !changed || e.Version != 2 {
		t.Fatalf("changed put: changed=%v version=%d", changed, e.Version)
	}
	if e, _ := reg.Get("Post"); !e.Def.HasField("body") {
		t.Fatal("registry should serve the replacement")
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry()
	reg.Put(&ModelDefinition{Name: "Zeta"})
	reg.Put(&ModelDefinition{Name: "Alpha"})

	if !reg.Remove("Zeta") {
		t.Fatal("expected Zeta to be removed")
	}
	if reg.Remove("Zeta") {
		t.Fatal("second remove should report absent")
	}
	if _, ok := reg.Get("Zeta"); ok {
		t.Fatal("Zeta still present")
	}
	if _, ok := reg.Get("Alpha"); !ok {
		t.Fatal("Alpha should survive")
	}
}

func TestRegistry_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	reg := NewRegistry()
	reg.Put(postModel())

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
				e, ok := reg.Get("Post")
				if !ok || e.Def == nil || e.Def.Name != "Post" {
					t.Errorf("reader saw an incomplete entry: %+v", e)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		m := postModel()
		m.Fields = append(m.Fields, Field{Name: "extra", Type: TypeString, Required: i%2 == 0})
		reg.Put(m)
	}
	close(stop)
	wg.Wait()
}
