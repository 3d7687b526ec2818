// Package dbprovision implements deployment.DatabaseProvisioner with one
// sqlite database file per project, grounded on internal/database.go's own
// sqlite+gorm setup (WAL mode, single file per store) narrowed from one
// shared panel database to one file per tenant.
package dbprovision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/web-casa/shuttlectl/internal/deployment"
)

// Provisioner hands out a per-project sqlite file under dir, creating it
// (and a random role password, carried for parity with DbCredentials even
// though sqlite itself has no user accounts) on first request.
type Provisioner struct {
	dir string

	mu    sync.Mutex
	cache map[string]*deployment.DbCredentials
}

// New creates a Provisioner rooted at dir (typically <DataDir>/databases).
func New(dir string) *Provisioner {
	return &Provisioner{dir: dir, cache: make(map[string]*deployment.DbCredentials)}
}

// Provision satisfies deployment.DatabaseProvisioner.
func (p *Provisioner) Provision(ctx context.Context, project string) (*deployment.DbCredentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if creds, ok := p.cache[project]; ok {
		return creds, nil
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dbName := project + ".db"
	path := filepath.Join(p.dir, dbName)
	if _, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644); err != nil {
		return nil, fmt.Errorf("create database file: %w", err)
	}

	creds := &deployment.DbCredentials{
		RoleName: project,
		Password: genPassword(),
		DbName:   dbName,
		DSN:      fmt.Sprintf("sqlite://%s", path),
	}
	p.cache[project] = creds
	return creds, nil
}

func genPassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
