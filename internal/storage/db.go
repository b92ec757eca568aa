// Package storage provides database abstractions.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together on Commit. A failed
// Put or Delete is also reported by Commit, so callers may check only
// Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by databases that can commit writes atomically.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns an atomic batch when db supports one, and otherwise a
// batch that applies its writes one by one on Commit.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &queuedBatch{commit: applyEach(db)}
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// queuedBatch buffers writes until Commit hands them to commit.
type queuedBatch struct {
	ops    []batchOp
	commit func([]batchOp) error
}

func (q *queuedBatch) Put(key, value []byte) error {
	q.ops = append(q.ops, batchOp{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (q *queuedBatch) Delete(key []byte) error {
	q.ops = append(q.ops, batchOp{key: copyBytes(key), delete: true})
	return nil
}

func (q *queuedBatch) Commit() error {
	ops := q.ops
	q.ops = nil
	return q.commit(ops)
}

// applyEach writes ops to db one at a time, stopping at the first error.
func applyEach(db DB) func([]batchOp) error {
	return func(ops []batchOp) error {
		for _, op := range ops {
			var err error
			if op.delete {
				err = db.Delete(op.key)
			} else {
				err = db.Put(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func copyBytes(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}
