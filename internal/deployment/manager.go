package deployment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/web-casa/shuttlectl/internal/apierr"
	"github.com/web-casa/shuttlectl/internal/router"
)

// projectNamePattern matches the virtual-hostname-safe project names §6
// requires.
var projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// killTimeout bounds how long Kill waits for the pipeline to acknowledge
// cancellation before returning anyway (Open Question (c): 30s, the
// teacher's own shutdown-timeout default).
const killTimeout = 30 * time.Second

// Manager is the DeploymentManager: the single writer over the registry and
// the router table, the admission-controlled build/load pipeline, and the
// swap-in/swap-out orchestrator.
//
// Per-project serialization (Design Notes §9) is achieved with one mutex
// per project name, acquired by the pipeline goroutine before advancing a
// deployment past Queued and held until that deployment reaches Deployed or
// a terminal state — generalizing the deploy plugin's buildMu/buildLocks
// pair (which only ever rejected a concurrent build outright) into a queue
// that lets a second Deploy for the same project wait its turn instead.
type Manager struct {
	registry *Registry
	table    *router.Table

	build  BuildSystem
	load   Loader
	dbProv DatabaseProvisioner

	hostSuffix string
	// jobs is unbuffered: a Deploy's send only completes when a worker is
	// idle and waiting to receive, so admission control (the select/
	// default in Deploy) rejects the instant all MaxDeploys workers are
	// busy, instead of merely queuing an unbounded backlog behind them.
	jobs chan string

	gatesMu sync.Mutex
	gates   map[string]*sync.Mutex

	cancelsMu sync.Mutex
	cancels   map[string]context.CancelFunc

	doneMu    sync.Mutex
	doneChans map[string]chan struct{} // closed per-id when its pipeline goroutine returns

	ports *portSet

	archivesMu sync.Mutex
	archives   map[string][]byte // pending raw archive bytes, keyed by deployment id
}

// Config bundles the manager's tunables, read once at construction.
type Config struct {
	HostSuffix  string
	MaxDeploys  int
	PortRangeLo int
	PortRangeHi int
}

// New creates a Manager and starts its bounded worker pool.
func New(cfg Config, build BuildSystem, load Loader, dbProv DatabaseProvisioner) *Manager {
	if cfg.MaxDeploys <= 0 {
		cfg.MaxDeploys = 4
	}
	m := &Manager{
		registry:   NewRegistry(),
		table:      router.New(),
		build:      build,
		load:       load,
		dbProv:     dbProv,
		hostSuffix: cfg.HostSuffix,
		jobs:       make(chan string), // unbuffered, see comment on the jobs field
		gates:      make(map[string]*sync.Mutex),
		cancels:    make(map[string]context.CancelFunc),
		doneChans:  make(map[string]chan struct{}),
		ports:      newPortSet(cfg.PortRangeLo, cfg.PortRangeHi),
		archives:   make(map[string][]byte),
	}
	for i := 0; i < cfg.MaxDeploys; i++ {
		go m.worker()
	}
	return m
}

// Router exposes the routing table for the reverse proxy to read.
func (m *Manager) Router() *router.Table { return m.table }

func (m *Manager) worker() {
	for id := range m.jobs {
		m.runPipeline(id)
	}
}

// Deploy accepts an upload, inserts a Queued record, and hands it to the
// bounded pipeline. It returns as soon as the record is inserted — it never
// waits for build or load to complete.
func (m *Manager) Deploy(project string, archive []byte) (Snapshot, error) {
	if !projectNamePattern.MatchString(project) {
		return Snapshot{}, apierr.BadRequest("invalid project name")
	}
	if len(archive) == 0 {
		return Snapshot{}, apierr.BadRequest("empty archive")
	}
	if len(archive) < 2 || archive[0] != 0x1f || archive[1] != 0x8b {
		return Snapshot{}, apierr.BadRequest("archive is not gzip-compressed")
	}

	id := genID()
	d := &Deployment{
		ID:         id,
		Project:    project,
		State:      Queued,
		Host:       hostFor(project, m.hostSuffix),
		BuildLog:   NewRingLog(),
		RuntimeLog: NewRingLog(),
		CreatedAt:  time.Now(),
	}

	m.archivesMu.Lock()
	m.archives[id] = archive
	m.archivesMu.Unlock()

	m.registry.Insert(d)
	m.markInFlight(id)

	select {
	case m.jobs <- id:
	default:
		// Pipeline saturated: undo the registry insert's effect by marking
		// the record terminal immediately so it does not linger as a ghost
		// active deployment, and report Unavailable to the caller.
		m.registry.SetError(id, "pipeline saturated")
		m.clearInFlight(id)
		return Snapshot{}, apierr.Unavailable("deployment pipeline is saturated")
	}

	snap, _ := m.registry.Snapshot(id)
	return snap, nil
}

// GetByID returns the current snapshot for id.
func (m *Manager) GetByID(id string) (Snapshot, error) {
	snap, ok := m.registry.Snapshot(id)
	if !ok {
		return Snapshot{}, apierr.NotFound("deployment not found")
	}
	return snap, nil
}

// GetActive returns the active deployment's snapshot for project.
func (m *Manager) GetActive(project string) (Snapshot, error) {
	snap, ok := m.registry.ActiveSnapshot(project)
	if !ok {
		return Snapshot{}, apierr.NotFound("project not found")
	}
	return snap, nil
}

// Kill transitions id to Deleted, tearing down its service and releasing
// its port and route if it had advanced that far. It blocks until the
// pipeline observes the cancellation or killTimeout elapses, whichever is
// first; it is idempotent and safe to call on an already-terminal id.
func (m *Manager) Kill(id string) (Snapshot, error) {
	d, ok := m.registry.Ref(id)
	if !ok {
		return Snapshot{}, apierr.NotFound("deployment not found")
	}

	if cancel, ok := m.getCancel(id); ok {
		cancel()
	}

	svc, port, didKill := m.registry.Kill(m.table, id)
	if didKill {
		m.teardownReleased(svc, port)
	}

	m.waitInFlight(id, killTimeout)

	snap, _ := m.registry.Snapshot(d.ID)
	return snap, nil
}

// KillActive kills the current active deployment for project.
func (m *Manager) KillActive(project string) (Snapshot, error) {
	snap, ok := m.registry.ActiveSnapshot(project)
	if !ok {
		return Snapshot{}, apierr.NotFound("project not found")
	}
	return m.Kill(snap.ID)
}

// runPipeline drives one deployment from Queued to Deployed or a terminal
// state. It is only ever invoked on the worker pool, at most once per id.
func (m *Manager) runPipeline(id string) {
	defer m.clearInFlight(id)

	d, ok := m.registry.Ref(id)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.setCancel(id, cancel)
	defer func() {
		cancel()
		m.clearCancel(id)
	}()

	gate := m.projectGate(d.Project)
	gate.Lock()
	defer gate.Unlock()

	if m.killedEarly(ctx, id) {
		return
	}

	m.archivesMu.Lock()
	archive := m.archives[id]
	delete(m.archives, id)
	m.archivesMu.Unlock()

	artifact, err := m.build.Build(ctx, d.Project, archive, d.BuildLog)
	if err != nil {
		// A Kill's cancellation can race a genuine build failure to this
		// point; ctx.Err() takes priority so a killed deployment always
		// lands on Deleted, never Error, regardless of which one the
		// BuildSystem noticed first.
		if m.killedEarly(ctx, id) {
			return
		}
		m.registry.SetError(id, fmt.Sprintf("build failed: %v", err))
		return
	}
	if !m.registry.SetBuilt(id, artifact) {
		return // superseded/killed concurrently
	}
	if m.killedEarly(ctx, id) {
		return
	}

	port, ok := m.ports.allocate()
	if !ok {
		m.registry.SetError(id, "port exhausted")
		return
	}

	factory := &dbFactory{prov: m.dbProv, project: d.Project, registry: m.registry, id: id}
	svc, err := m.load.Load(ctx, artifact, d.Project, id, port, factory, d.RuntimeLog)
	if err != nil {
		m.ports.release(port)
		if m.killedEarly(ctx, id) {
			return
		}
		m.registry.SetError(id, fmt.Sprintf("load failed: %v", err))
		return
	}
	if !m.registry.SetLoaded(id, port, svc) {
		// Killed between Build and Load completing: discard what we built.
		svc.Shutdown()
		m.ports.release(port)
		return
	}

	if ctx.Err() != nil {
		// Kill observed us at/past Loaded: it already tore us down via
		// registry.Kill (which returns our Service+port for release) — see
		// Kill's own teardownReleased call. Nothing further to do here.
		return
	}

	target := fmt.Sprintf("127.0.0.1:%d", port)
	prev, hadPrev := m.registry.SwapIn(m.table, id, d.Project, d.Host, target)
	if hadPrev {
		go m.teardown(prev)
	}
}

// killedEarly checks ctx for cancellation and, if observed, transitions id
// straight to Deleted (the short-circuit for Kill during Queued/Built).
func (m *Manager) killedEarly(ctx context.Context, id string) bool {
	if ctx.Err() == nil {
		return false
	}
	m.registry.Kill(m.table, id)
	return true
}

// teardown shuts down a superseded deployment's service and releases its
// port, logging failures rather than propagating them — an old service
// that refuses to stop must not block the new one being live.
func (m *Manager) teardown(d *Deployment) {
	m.teardownReleased(d.Service, d.Port)
}

func (m *Manager) teardownReleased(svc Service, port int) {
	if svc != nil {
		if err := svc.Shutdown(); err != nil {
			log.Printf("deployment: service shutdown error: %v", err)
		}
	}
	if port != 0 {
		m.ports.release(port)
	}
}

func (m *Manager) projectGate(project string) *sync.Mutex {
	m.gatesMu.Lock()
	defer m.gatesMu.Unlock()
	g, ok := m.gates[project]
	if !ok {
		g = &sync.Mutex{}
		m.gates[project] = g
	}
	return g
}

func (m *Manager) setCancel(id string, cancel context.CancelFunc) {
	m.cancelsMu.Lock()
	defer m.cancelsMu.Unlock()
	m.cancels[id] = cancel
}

func (m *Manager) getCancel(id string) (context.CancelFunc, bool) {
	m.cancelsMu.Lock()
	defer m.cancelsMu.Unlock()
	c, ok := m.cancels[id]
	return c, ok
}

func (m *Manager) clearCancel(id string) {
	m.cancelsMu.Lock()
	defer m.cancelsMu.Unlock()
	delete(m.cancels, id)
}

func (m *Manager) markInFlight(id string) {
	m.doneMu.Lock()
	defer m.doneMu.Unlock()
	m.doneChans[id] = make(chan struct{})
}

func (m *Manager) clearInFlight(id string) {
	m.doneMu.Lock()
	defer m.doneMu.Unlock()
	if ch, ok := m.doneChans[id]; ok {
		close(ch)
		delete(m.doneChans, id)
	}
}

func (m *Manager) waitInFlight(id string, timeout time.Duration) {
	m.doneMu.Lock()
	ch, ok := m.doneChans[id]
	m.doneMu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

// genID returns a short random hex identifier, grounded on the deploy
// plugin's crypto/rand-based webhook token generation.
func genID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// dbFactory implements DbFactory, lazily provisioning and caching
// credentials on the owning Deployment the first time a tenant service
// calls GetDatabase.
type dbFactory struct {
	prov     DatabaseProvisioner
	project  string
	registry *Registry
	id       string

	mu    sync.Mutex
	creds *DbCredentials
}

func (f *dbFactory) GetDatabase(ctx context.Context) (*DbCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creds != nil {
		return f.creds, nil
	}
	creds, err := f.prov.Provision(ctx, f.project)
	if err != nil {
		return nil, err
	}
	f.creds = creds
	f.registry.SetDBCredentials(f.id, creds)
	return creds, nil
}
