// Package storage implements the C-ambient persistence layer of
// SPEC_FULL.md's [DOMAIN STACK] / spec.md §6.1: a put/get/batch
// key-value interface over a choice of LevelDB or Badger, narrowed to
// this protocol's six namespaces (blocks, block-by-hash, utxo,
// chain_meta, validators, peers).
//
// Database and Batch are adapted from the teacher's
// storage/database/{leveldb_database.go,badger_database.go}: the same
// Put/Get/Has/Delete/NewBatch method set, so either backend can be
// dropped in behind the namespace layer in kv_store.go unchanged.
package storage

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleStorage)

// Backend names the underlying engine (spec.md doesn't mandate one;
// the teacher supports both, so this node keeps both call-site options
// rather than narrowing to a single vendor).
type Backend string

const (
	LevelDB Backend = "leveldb"
	Badger  Backend = "badger"
)

// Database is the minimal KV surface both backends satisfy.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewBatch() Batch
	Close()
}

// Batch groups writes for a single atomic commit (spec.md §6.1: "all
// writes within a block commit are grouped into a single atomic batch").
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	ValueSize() int
	Reset()
}

// Open constructs a Database of the requested backend rooted at dir.
func Open(backend Backend, dir string, cacheSizeMB, handles int) (Database, error) {
	switch backend {
	case Badger:
		return newBadgerDB(dir)
	case LevelDB, "":
		return newLevelDB(dir, cacheSizeMB, handles)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}

// --- LevelDB backend, adapted from storage/database/leveldb_database.go ---

type levelDB struct {
	fn string
	db *leveldb.DB
}

func newLevelDB(dir string, cacheSizeMB, handles int) (*levelDB, error) {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if handles < 16 {
		handles = 16
	}
	options := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
	}
	db, err := leveldb.OpenFile(dir, options)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("opened leveldb backend", "dir", dir, "cacheSizeMB", cacheSizeMB, "handles", handles)
	return &levelDB{fn: dir, db: db}, nil
}

func (d *levelDB) Put(key, value []byte) error { return d.db.Put(key, value, nil) }

func (d *levelDB) Get(key []byte) ([]byte, error) { return d.db.Get(key, nil) }

func (d *levelDB) Has(key []byte) (bool, error) { return d.db.Has(key, nil) }

func (d *levelDB) Delete(key []byte) error { return d.db.Delete(key, nil) }

func (d *levelDB) Close() {
	if err := d.db.Close(); err != nil {
		logger.Error("failed to close leveldb backend", "err", err)
	}
}

func (d *levelDB) NewBatch() Batch { return &levelDBBatch{db: d.db, batch: new(leveldb.Batch)} }

type levelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	size  int
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size++
	return nil
}

func (b *levelDBBatch) Write() error { return b.db.Write(b.batch, nil) }

func (b *levelDBBatch) ValueSize() int { return b.size }

func (b *levelDBBatch) Reset() { b.batch.Reset(); b.size = 0 }

// --- Badger backend, adapted from storage/database/badger_database.go ---

type badgerDB struct {
	fn string
	db *badger.DB
}

func newBadgerDB(dir string) (*badgerDB, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	logger.Info("opened badger backend", "dir", dir)
	return &badgerDB{fn: dir, db: db}, nil
}

func (d *badgerDB) Put(key, value []byte) error {
	txn := d.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (d *badgerDB) Has(key []byte) (bool, error) {
	txn := d.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *badgerDB) Get(key []byte) ([]byte, error) {
	txn := d.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value()
}

func (d *badgerDB) Delete(key []byte) error {
	txn := d.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (d *badgerDB) Close() {
	if err := d.db.Close(); err != nil {
		logger.Error("failed to close badger backend", "err", err)
	}
}

func (d *badgerDB) NewBatch() Batch {
	return &badgerBatch{db: d.db, txn: d.db.NewTransaction(true)}
}

type badgerBatch struct {
	db   *badger.DB
	txn  *badger.Txn
	size int
}

func (b *badgerBatch) Put(key, value []byte) error {
	b.size += len(value)
	return b.txn.Set(key, value)
}

func (b *badgerBatch) Delete(key []byte) error {
	b.size++
	return b.txn.Delete(key)
}

func (b *badgerBatch) Write() error { return b.txn.Commit(nil) }

func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Reset() {
	b.txn = b.db.NewTransaction(true)
	b.size = 0
}
