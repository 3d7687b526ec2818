package deployment

import "sync"

// portSet is the free-port pool a deployment's Loader binds to, one port
// per live (Loaded or Deployed) deployment. Ports are released back to the
// set as soon as a deployment is superseded, killed, or fails to load.
type portSet struct {
	mu   sync.Mutex
	free []int
	used map[int]bool
}

func newPortSet(lo, hi int) *portSet {
	if lo <= 0 || hi <= lo {
		lo, hi = 20000, 29999
	}
	ps := &portSet{used: make(map[int]bool)}
	for p := hi; p >= lo; p-- {
		ps.free = append(ps.free, p)
	}
	return ps
}

func (ps *portSet) allocate() (int, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.free) == 0 {
		return 0, false
	}
	p := ps.free[len(ps.free)-1]
	ps.free = ps.free[:len(ps.free)-1]
	ps.used[p] = true
	return p, true
}

func (ps *portSet) release(p int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.used[p] {
		return
	}
	delete(ps.used, p)
	ps.free = append(ps.free, p)
}
