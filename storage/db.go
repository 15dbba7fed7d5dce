package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. Trie nodes and host
// metadata (head pointer, ledger clock) share the same backend so a single
// directory holds the whole ledger.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type backend struct {
	kv     ethdb.Database
	trieDB *triedb.Database
}

func newBackend(store ethdb.KeyValueStore) backend {
	kv := rawdb.NewDatabase(store)
	return backend{kv: kv, trieDB: triedb.NewDatabase(kv, triedb.HashDefaults)}
}

func (b backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b backend) Get(key []byte) ([]byte, error) {
	ok, err := b.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return b.kv.Get(key)
}

func (b backend) TrieDB() *triedb.Database { return b.trieDB }

func (b backend) close() {
	_ = b.trieDB.Close()
	_ = b.kv.Close()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() { db.close() }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	backend
}

const (
	levelDBCacheMB = 64
	levelDBHandles = 128
)

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	store, err := ethleveldb.New(path, levelDBCacheMB, levelDBHandles, "chowfast/db/", false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{backend: newBackend(store)}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() { ldb.close() }
