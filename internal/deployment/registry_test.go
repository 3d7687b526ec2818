package deployment

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type fakeTable struct {
	routes map[string]string
}

func newFakeTable() *fakeTable { return &fakeTable{routes: make(map[string]string)} }

func (f *fakeTable) Upsert(host, target string) { f.routes[host] = target }
func (f *fakeTable) Remove(host string)         { delete(f.routes, host) }

func newQueued(id, project string) *Deployment {
	return &Deployment{
		ID:         id,
		Project:    project,
		State:      Queued,
		Host:       hostFor(project, "test"),
		BuildLog:   NewRingLog(),
		RuntimeLog: NewRingLog(),
		CreatedAt:  time.Now(),
	}
}

// Property 1: single active per project. After any sequence of Insert/
// SwapIn/Kill calls against one project, at most one non-terminal record is
// active for it.
func TestProperty_SingleActivePerProject(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one non-terminal record active per project", prop.ForAll(
		func(ops []int) bool {
			r := NewRegistry()
			table := newFakeTable()
			project := "acme"
			var ids []string

			for i, op := range ops {
				switch op % 3 {
				case 0:
					id := idFor(i)
					r.Insert(newQueued(id, project))
					ids = append(ids, id)
				case 1:
					if len(ids) == 0 {
						continue
					}
					id := ids[i%len(ids)]
					r.registry_testSwapIn(table, id, project)
				case 2:
					if len(ids) == 0 {
						continue
					}
					id := ids[i%len(ids)]
					r.Kill(table, id)
				}
			}

			nonTerminal := 0
			for _, id := range ids {
				d, ok := r.Ref(id)
				if ok && r.IsActive(project, id) && !d.State.Terminal() {
					nonTerminal++
				}
			}
			return nonTerminal <= 1
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + string(letters[(i/len(letters))%len(letters)])
}

// registry_testSwapIn drives a record straight to Deployed, bypassing Built/
// Loaded for the purposes of this property (it only cares about the
// byProject/router invariant, not the full pipeline).
func (r *Registry) registry_testSwapIn(table upserter, id, project string) {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.SwapIn(table, id, project, d.Host, "127.0.0.1:1")
}

func TestKillIdempotent(t *testing.T) {
	r := NewRegistry()
	table := newFakeTable()
	d := newQueued("x1", "acme")
	r.Insert(d)
	r.SwapIn(table, "x1", "acme", d.Host, "127.0.0.1:1")

	_, _, first := r.Kill(table, "x1")
	if !first {
		t.Fatal("expected first Kill to perform the transition")
	}
	snapBefore, _ := r.Snapshot("x1")

	_, _, second := r.Kill(table, "x1")
	if second {
		t.Fatal("expected second Kill to be a no-op")
	}
	snapAfter, _ := r.Snapshot("x1")

	if snapBefore != snapAfter {
		t.Fatalf("snapshot changed across idempotent Kill calls: %+v vs %+v", snapBefore, snapAfter)
	}
	if _, routed := table.routes[d.Host]; routed {
		t.Fatal("expected route removed after Kill")
	}
}

func TestSwapInDisplacesPrevious(t *testing.T) {
	r := NewRegistry()
	table := newFakeTable()

	d1 := newQueued("v1", "acme")
	r.Insert(d1)
	r.SwapIn(table, "v1", "acme", d1.Host, "127.0.0.1:100")

	d2 := newQueued("v2", "acme")
	r.Insert(d2)
	prev, had := r.SwapIn(table, "v2", "acme", d2.Host, "127.0.0.1:200")

	if !had || prev == nil || prev.ID != "v1" {
		t.Fatalf("expected v1 to be displaced, got %+v, had=%v", prev, had)
	}
	if !r.IsActive("acme", "v2") {
		t.Fatal("expected v2 to be the active deployment")
	}
	if table.routes[d2.Host] != "127.0.0.1:200" {
		t.Fatalf("expected route to point at v2's target, got %q", table.routes[d2.Host])
	}
}
