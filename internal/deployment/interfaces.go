package deployment

import "context"

// BuildSystem compiles an uploaded archive into a loadable artifact. The
// manager runs Build on the bounded worker pool; concurrent Build calls for
// different projects must be safe, but serialization of concurrent builds
// for the *same* project is the manager's job, not the BuildSystem's.
type BuildSystem interface {
	Build(ctx context.Context, project string, archive []byte, log *RingLog) (artifact string, err error)
}

// DbFactory is handed to Loader.Load so the tenant service can lazily
// request a database; the first call provisions and the Deployment caches
// the resulting credentials.
type DbFactory interface {
	GetDatabase(ctx context.Context) (*DbCredentials, error)
}

// Loader turns a built artifact into a running Service bound to port. id is
// the deployment's own id, distinct from every other deployment ever made
// for project (including one it may be about to displace) — implementations
// must derive any exclusively-owned resource name (container name, etc.)
// from id, never from project alone, so a rolling replace never collides
// with the instance it is about to supersede.
type Loader interface {
	Load(ctx context.Context, artifact string, project string, id string, port int, factory DbFactory, runtimeLog *RingLog) (Service, error)
}

// DatabaseProvisioner creates (or returns the cached) role+database for a
// project. Provision is idempotent per project within the process lifetime.
type DatabaseProvisioner interface {
	Provision(ctx context.Context, project string) (*DbCredentials, error)
}
