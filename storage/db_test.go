package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(value, []byte("v")) {
		t.Fatalf("unexpected value: %q", value)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, _ := db.Get([]byte("k"))
	value[0] = 'x'
	again, _ := db.Get([]byte("k"))
	if !bytes.Equal(again, []byte("v")) {
		t.Fatalf("stored value mutated through returned slice")
	}
}

func TestBatchCommitsAtomically(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("stale"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("stale"))

	// Nothing lands before Write.
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatal("staged write visible before commit")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, _ := db.Has([]byte("a")); !ok {
		t.Fatal("batched put missing after commit")
	}
	if ok, _ := db.Has([]byte("stale")); ok {
		t.Fatal("batched delete not applied")
	}

	batch.Reset()
	batch.Put([]byte("c"), []byte("3"))
	if err := batch.Write(); err != nil {
		t.Fatalf("write after reset: %v", err)
	}
	if ok, _ := db.Has([]byte("c")); !ok {
		t.Fatal("write after reset missing")
	}
}
