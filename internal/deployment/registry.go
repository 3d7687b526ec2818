package deployment

import "sync"

// Registry is the in-memory DeploymentRegistry: records indexed by id and,
// for the active (non-terminal) record, by project. Every mutation —
// including the router.Table swap the manager performs during promotion —
// is serialized through a single mutex, so registry and router state always
// move together. The corpus never splits this kind of shared mutable state
// finer-grained than "one mutex over the related maps" (e.g. the deploy
// plugin's buildMu/buildLocks pair guarding one concern together), and
// swap-in correctness here depends on the same discipline.
type Registry struct {
	mu        sync.Mutex
	byID      map[string]*Deployment
	byProject map[string]string // project -> active deployment id
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Deployment),
		byProject: make(map[string]string),
	}
}

// Insert registers a newly queued record. If project has no live (non-
// terminal) active deployment, the new record becomes active immediately;
// otherwise byProject is left pointing at the live one, so SwapIn can still
// find it as the predecessor to displace once this record is promoted.
func (r *Registry) Insert(d *Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[d.ID] = d
	if prevID, ok := r.byProject[d.Project]; ok {
		if prev, ok := r.byID[prevID]; ok && !prev.State.Terminal() {
			return
		}
	}
	r.byProject[d.Project] = d.ID
}

// Ref returns the raw record pointer for id, for the pipeline goroutine
// that owns it to read its immutable fields (ID, Project, Host, CreatedAt,
// BuildLog, RuntimeLog — never written again after Insert). Any mutable
// field (State, Artifact, Port, Service, DB) must only be touched through
// the Set*/SwapIn/Kill methods below, which take the registry lock.
func (r *Registry) Ref(id string) (*Deployment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	return d, ok
}

// Snapshot returns a consistent read-only view of the record for id.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return d.Snapshot(), true
}

// ActiveSnapshot returns a consistent read-only view of project's active
// deployment, if any.
func (r *Registry) ActiveSnapshot(project string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byProject[project]
	if !ok {
		return Snapshot{}, false
	}
	d, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return d.Snapshot(), true
}

// IsActive reports whether id is currently the active deployment for project.
func (r *Registry) IsActive(project, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byProject[project] == id
}

// SetBuilt records a successful build stage transition.
func (r *Registry) SetBuilt(id, artifact string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		return false
	}
	d.State = Built
	d.Artifact = artifact
	return true
}

// SetLoaded records a successful load stage transition.
func (r *Registry) SetLoaded(id string, port int, svc Service) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		return false
	}
	d.State = Loaded
	d.Port = port
	d.Service = svc
	return true
}

// SetDBCredentials caches provisioned database credentials on the record.
func (r *Registry) SetDBCredentials(id string, creds *DbCredentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byID[id]; ok {
		d.DB = creds
	}
}

// SetError transitions id to the terminal Error state with reason, unless
// it is already terminal (errors never override a prior terminal state).
func (r *Registry) SetError(id, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		return false
	}
	d.State = Error
	d.ErrReason = reason
	return true
}

// SwapIn atomically promotes id to Deployed, installs host->target in
// table, and displaces whatever was previously active for project: a
// non-terminal predecessor moves to Deleted. It returns a copy of the
// displaced record as it was before the swap, still carrying its Service
// and Port (for asynchronous teardown), if any.
func (r *Registry) SwapIn(table upserter, id, project, host, target string) (prev *Deployment, hadPrev bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		return nil, false
	}

	prevID, had := r.byProject[project]
	r.byProject[project] = id
	table.Upsert(host, target)
	d.State = Deployed

	if had && prevID != id {
		if p, ok := r.byID[prevID]; ok {
			displaced := *p
			if !p.State.Terminal() {
				p.State = Deleted
			}
			p.Service = nil
			p.Port = 0
			return &displaced, true
		}
	}
	return nil, false
}

// upserter is the narrow slice of router.Table that Registry needs, kept as
// an interface so Registry can be driven against any table implementation
// (the tests use an in-memory fake).
type upserter interface {
	Upsert(host, target string)
}

// remover is the narrow slice of router.Table used to clear a route.
type remover interface {
	Remove(host string)
}

// Kill transitions id to Deleted. If id is currently the active deployment
// for its project and has a routed host, the route is removed. It returns
// the record's Service handle (for shutdown by the caller) and port (for
// release back to the free set), and whether this call actually performed
// the transition (false if id was already terminal — Kill is idempotent).
func (r *Registry) Kill(table remover, id string) (svc Service, port int, didKill bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok || d.State.Terminal() {
		return nil, 0, false
	}

	if r.byProject[d.Project] == id {
		delete(r.byProject, d.Project)
		if d.State == Deployed {
			table.Remove(d.Host)
		}
	}

	svc, port = d.Service, d.Port
	d.State = Deleted
	d.Service = nil
	d.Port = 0
	return svc, port, true
}
