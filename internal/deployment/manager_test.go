package deployment

import (
	"context"
	"sync"
	"testing"
	"time"
)

// blockingBuild never returns until the test closes release or the build's
// context is cancelled, letting us saturate the pipeline deterministically
// (S4).
type blockingBuild struct {
	release chan struct{}
}

func (b *blockingBuild) Build(ctx context.Context, project string, archive []byte, log *RingLog) (string, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "/tmp/" + project, nil
}

type noopLoad struct{}

func (noopLoad) Load(ctx context.Context, artifact, project, id string, port int, factory DbFactory, runtimeLog *RingLog) (Service, error) {
	return noopService{}, nil
}

type noopService struct{}

func (noopService) Shutdown() error { return nil }

type noopDB struct{}

func (noopDB) Provision(ctx context.Context, project string) (*DbCredentials, error) {
	return &DbCredentials{DSN: "sqlite://:memory:"}, nil
}

// fakeArchive is a stand-in upload with a valid gzip magic prefix, since
// Deploy rejects anything else at admission.
var fakeArchive = []byte{0x1f, 0x8b, 'x'}

func TestDeployRejectsInvalidProjectName(t *testing.T) {
	m := New(Config{MaxDeploys: 1}, &blockingBuild{release: make(chan struct{})}, noopLoad{}, noopDB{})
	if _, err := m.Deploy("Not_Valid!", fakeArchive); err == nil {
		t.Fatal("expected invalid project name to be rejected")
	}
}

func TestDeployRejectsEmptyArchive(t *testing.T) {
	m := New(Config{MaxDeploys: 1}, &blockingBuild{release: make(chan struct{})}, noopLoad{}, noopDB{})
	if _, err := m.Deploy("foo", nil); err == nil {
		t.Fatal("expected empty archive to be rejected")
	}
}

func TestDeployRejectsMalformedArchive(t *testing.T) {
	m := New(Config{MaxDeploys: 1}, &blockingBuild{release: make(chan struct{})}, noopLoad{}, noopDB{})
	if _, err := m.Deploy("foo", []byte("not a gzip archive")); err == nil {
		t.Fatal("expected non-gzip archive to be rejected at admission")
	}
	if _, err := m.Deploy("foo", []byte{0x1f}); err == nil {
		t.Fatal("expected a single-byte archive to be rejected at admission")
	}
}

// TestAdmissionLimit mirrors S4: with MaxDeploys=2, a third deploy whose
// builds block indefinitely must be rejected as Unavailable.
func TestAdmissionLimit(t *testing.T) {
	build := &blockingBuild{release: make(chan struct{})}
	m := New(Config{MaxDeploys: 2}, build, noopLoad{}, noopDB{})
	defer close(build.release)

	var wg sync.WaitGroup
	for _, p := range []string{"proj-a", "proj-b"} {
		wg.Add(1)
		go func(project string) {
			defer wg.Done()
			m.Deploy(project, fakeArchive)
		}(p)
	}
	wg.Wait()

	// Give the worker pool a moment to pick both jobs up off the channel
	// before judging the queue saturated.
	time.Sleep(50 * time.Millisecond)

	if _, err := m.Deploy("proj-c", fakeArchive); err == nil {
		t.Fatal("expected third concurrent deploy to be rejected as unavailable")
	}
}

func TestKillDuringBuildEndsInDeletedWithNoRoute(t *testing.T) {
	build := &blockingBuild{release: make(chan struct{})}
	defer close(build.release)

	m := New(Config{MaxDeploys: 1}, build, noopLoad{}, noopDB{})
	snap, err := m.Deploy("foo", fakeArchive)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	time.Sleep(10 * time.Millisecond) // let the worker pick the job up
	killed, err := m.Kill(snap.ID)
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if killed.State != Deleted.String() {
		t.Fatalf("got state %q, want %q", killed.State, Deleted.String())
	}

	if _, ok := m.Router().Lookup(killed.Host); ok {
		t.Fatal("expected no route to ever be installed for a killed-during-build deployment")
	}
}
