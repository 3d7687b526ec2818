// Package deployment implements the deployment lifecycle state machine
// (DeploymentRegistry, DeploymentManager) described as the core of the
// control plane: the state machine that takes an uploaded archive from
// queued through built, loaded, deployed, error and deleted, the bounded
// pipeline that drives those transitions, and the atomic swap-in that
// makes a newly deployed service live for its virtual host.
package deployment

import (
	"fmt"
	"time"
)

// State is one point in a Deployment's lifecycle. There are no backward
// edges; Error and Deleted are terminal.
type State int

const (
	Queued State = iota
	Built
	Loaded
	Deployed
	Error
	Deleted
)

func (s State) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Built:
		return "Built"
	case Loaded:
		return "Loaded"
	case Deployed:
		return "Deployed"
	case Error:
		return "Error"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == Error || s == Deleted
}

// DbCredentials is the opaque result of DatabaseProvisioner.Provision.
type DbCredentials struct {
	RoleName string
	Password string
	DbName   string
	DSN      string
}

// Service is the running handle produced by Loader.Load. Shutdown must be
// idempotent: it may be called zero, one, or many times, from any state
// transition that releases a deployment's port.
type Service interface {
	Shutdown() error
}

// Deployment is one record per upload: the unit the manager exclusively owns.
type Deployment struct {
	ID        string
	Project   string
	State     State
	ErrReason string // populated when State == Error

	Host string
	Port int // 0 until Loaded; cleared again on Deleted

	Artifact string // opaque handle set on Built
	Service  Service // set on Loaded, released on transition away from Loaded/Deployed
	DB       *DbCredentials

	BuildLog   *RingLog
	RuntimeLog *RingLog

	CreatedAt time.Time
}

// Snapshot is the read-only view returned to callers outside the manager.
// It never aliases the manager's Service handle.
type Snapshot struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	State     string    `json:"state"`
	ErrReason string    `json:"error,omitempty"`
	Host      string    `json:"host"`
	Port      int       `json:"port,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Deployment) Snapshot() Snapshot {
	return Snapshot{
		ID:        d.ID,
		Project:   d.Project,
		State:     d.State.String(),
		ErrReason: d.ErrReason,
		Host:      d.Host,
		Port:      d.Port,
		CreatedAt: d.CreatedAt,
	}
}

func hostFor(project, suffix string) string {
	return fmt.Sprintf("%s.%s", project, suffix)
}
