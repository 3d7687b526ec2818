package dbprovision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProvisionCreatesFileAndCaches(t *testing.T) {
	dir := t.TempDir()
	p := New(dir)

	creds, err := p.Provision(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "acme.db")); err != nil {
		t.Fatalf("expected database file to exist: %v", err)
	}

	again, err := p.Provision(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Provision (second call): %v", err)
	}
	if again.DSN != creds.DSN || again.Password != creds.Password {
		t.Fatal("expected cached credentials to be returned unchanged on repeat provision")
	}
}

func TestProvisionIsolatesProjects(t *testing.T) {
	dir := t.TempDir()
	p := New(dir)

	a, _ := p.Provision(context.Background(), "acme")
	b, _ := p.Provision(context.Background(), "globex")

	if a.DSN == b.DSN {
		t.Fatal("expected distinct projects to get distinct databases")
	}
}
