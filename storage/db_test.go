package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil || string(value) != "v1" {
		t.Fatalf("get = %q, %v", value, err)
	}
	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _ = db.Get([]byte("k"))
	if string(value) != "v2" {
		t.Fatalf("overwrite not applied: %q", value)
	}
	has, err := db.Has([]byte("k"))
	if err != nil || !has {
		t.Fatalf("has = %v, %v", has, err)
	}
	has, err = db.Has([]byte("missing"))
	if err != nil || has {
		t.Fatalf("has(missing) = %v, %v", has, err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	testDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	stored, _ := db.Get([]byte("k"))
	if string(stored) != "original" {
		t.Fatalf("stored value aliased caller slice: %q", stored)
	}
	stored[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "original" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	testDatabase(t, db)
}
