package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
)

// BadgerDB implements DB on a Badger key-value store.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens or creates a Badger database in dir.
func NewBadger(dir string) (*BadgerDB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		if dirLocked(err) {
			return nil, fmt.Errorf("database at %s is in use by another process: %w", dir, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", dir, err)
	}
	klog.Storage.Debug().Str("dir", dir).Msg("Badger opened")
	return &BadgerDB{db: db}, nil
}

// dirLocked reports whether err is Badger failing to take its flock.
func dirLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "resource temporarily unavailable")
}

// NewBadgerInMemory opens a Badger database that never touches disk.
func NewBadgerInMemory() (*BadgerDB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

// get loads key inside txn, mapping a missing key to ErrNotFound.
func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) (err error) {
		val, err = get(txn, key)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *BadgerDB) Put(key, value []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Set(key, value) }); err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

func (b *BadgerDB) Delete(key []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) }); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// ForEach visits keys starting with prefix in ascending order. fn receives
// copies it may keep.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("badger read %x: %w", item.Key(), err)
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// NewBatch returns a batch committed as one read-write transaction.
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{txn: b.db.NewTransaction(true)}
}

// badgerBatch records the first failure and refuses further writes.
type badgerBatch struct {
	txn *badger.Txn
	err error
}

func (bb *badgerBatch) apply(op string, f func() error) error {
	if bb.err == nil {
		if err := f(); err != nil {
			bb.err = fmt.Errorf("badger batch %s: %w", op, err)
		}
	}
	return bb.err
}

func (bb *badgerBatch) Put(key, value []byte) error {
	return bb.apply("put", func() error { return bb.txn.Set(copyBytes(key), copyBytes(value)) })
}

func (bb *badgerBatch) Delete(key []byte) error {
	return bb.apply("delete", func() error { return bb.txn.Delete(copyBytes(key)) })
}

func (bb *badgerBatch) Commit() error {
	if bb.err != nil {
		bb.txn.Discard()
		return bb.err
	}
	if err := bb.txn.Commit(); err != nil {
		return fmt.Errorf("badger batch commit: %w", err)
	}
	return nil
}
