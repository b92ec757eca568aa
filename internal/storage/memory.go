package storage

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryDB is a map-backed DB for tests and throwaway chains. It is safe
// for concurrent use.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty MemoryDB.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: map[string][]byte{}}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return copyBytes(v), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	_, ok := m.data[string(key)]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryDB) Put(key, value []byte) error {
	return m.apply([]batchOp{{key: key, value: copyBytes(value)}})
}

func (m *MemoryDB) Delete(key []byte) error {
	return m.apply([]batchOp{{key: key, delete: true}})
}

// apply runs ops under one write lock.
func (m *MemoryDB) apply(ops []batchOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.delete {
			delete(m.data, string(op.key))
			continue
		}
		m.data[string(op.key)] = op.value
	}
	return nil
}

// ForEach visits a sorted snapshot of the matching entries, so fn may
// write to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	m.mu.RLock()
	var snap []batchOp
	for _, k := range slices.Sorted(maps.Keys(m.data)) {
		if strings.HasPrefix(k, p) {
			snap = append(snap, batchOp{key: []byte(k), value: copyBytes(m.data[k])})
		}
	}
	m.mu.RUnlock()

	for _, e := range snap {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() error { return nil }

// NewBatch returns a batch applied under a single lock acquisition.
func (m *MemoryDB) NewBatch() Batch {
	return &queuedBatch{commit: m.apply}
}
