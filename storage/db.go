package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is the key-value store the market state is persisted in. Batches
// commit atomically: either every staged write lands or none do.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewBatch() Batch
	Close() error
}

// Batch stages writes for an atomic commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// MemDB is an in-memory Database used by tests and ephemeral runs.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) NewBatch() Batch {
	return &memBatch{db: db}
}

func (db *MemDB) Close() error { return nil }

type memWrite struct {
	key    string
	value  []byte
	delete bool
}

type memBatch struct {
	db     *MemDB
	writes []memWrite
}

func (b *memBatch) Put(key, value []byte) {
	b.writes = append(b.writes, memWrite{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.writes = append(b.writes, memWrite{key: string(key), delete: true})
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, w := range b.writes {
		if w.delete {
			delete(b.db.data, w.key)
			continue
		}
		b.db.data[w.key] = w.value
	}
	return nil
}

func (b *memBatch) Reset() { b.writes = b.writes[:0] }

// LevelDB is the persistent Database backend.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{db: ldb.db, batch: new(leveldb.Batch)}
}

func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()                { b.batch.Reset() }
