package storage

import (
	"errors"
	"testing"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key: got %v want ErrKeyNotFound", err)
	}

	if err := db.Put([]byte("o/b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("o/a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put([]byte("x/c"), []byte("3")); err != nil {
		t.Fatalf("put: %v", err)
	}

	value, err := db.Get([]byte("o/a"))
	if err != nil || string(value) != "1" {
		t.Fatalf("get: %q, %v", value, err)
	}

	var keys []string
	if err := db.Iterate([]byte("o/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "o/a" || keys[1] != "o/b" {
		t.Fatalf("prefix iteration: got %v", keys)
	}

	if err := db.Delete([]byte("o/a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("o/a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("deleted key: got %v want ErrKeyNotFound", err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	testDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	original := []byte("value")
	if err := db.Put([]byte("k"), original); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 'X'
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "value" {
		t.Fatalf("stored value aliased caller slice: %q", stored)
	}
	stored[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "value" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}
}

func TestLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	testDatabase(t, db)
	db.Close()
}

func TestLevelDBReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("persisted")); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	reopened, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get([]byte("k"))
	if err != nil || string(value) != "persisted" {
		t.Fatalf("get after reopen: %q, %v", value, err)
	}
}
