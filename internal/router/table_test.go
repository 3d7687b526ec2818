package router

import "testing"

func TestUpsertAndLookup(t *testing.T) {
	tbl := New()
	tbl.Upsert("foo.example.com", "127.0.0.1:100")

	target, ok := tbl.Lookup("foo.example.com")
	if !ok || target != "127.0.0.1:100" {
		t.Fatalf("got (%q, %v), want (127.0.0.1:100, true)", target, ok)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	tbl := New()
	tbl.Upsert("foo.example.com", "127.0.0.1:100")
	tbl.Upsert("foo.example.com", "127.0.0.1:200")

	target, _ := tbl.Lookup("foo.example.com")
	if target != "127.0.0.1:200" {
		t.Fatalf("got %q, want 127.0.0.1:200", target)
	}
	if tbl.Len() != 1 {
		t.Fatalf("got Len() = %d, want 1", tbl.Len())
	}
}

func TestRemove(t *testing.T) {
	tbl := New()
	tbl.Upsert("foo.example.com", "127.0.0.1:100")
	tbl.Remove("foo.example.com")

	if _, ok := tbl.Lookup("foo.example.com"); ok {
		t.Fatal("expected no route after Remove")
	}
}

func TestLookupMiss(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Lookup("nobody.example.com"); ok {
		t.Fatal("expected miss for unregistered host")
	}
}
