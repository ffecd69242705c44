package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteKVRoundTrip(t *testing.T) {
	kv, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer kv.Close()
	ctx := context.Background()

	// Missing key.
	_, ok, err := kv.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("absent key reported as present")
	}

	// Set, get, overwrite.
	if err := kv.Set(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || string(v) != "one" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if err := kv.Set(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, err = kv.Get(ctx, "k")
	if err != nil || string(v) != "two" {
		t.Fatalf("Get after overwrite = %q, %v", v, err)
	}

	// Delete is idempotent.
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete again: %v", err)
	}
	_, ok, err = kv.Get(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Get after delete = %v, %v", ok, err)
	}
}

func TestSQLiteKVCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sessions.db")
	kv, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	kv.Close()
}
