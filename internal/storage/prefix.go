package storage

// PrefixDB is a namespace inside another DB: every key is stored under a
// fixed prefix and handed back to callers with the prefix removed. The
// chain view keeps its block index, height index, undo records and UTXO
// set as separate PrefixDBs over one database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace of inner under prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: append([]byte(nil), prefix...)}
}

// key returns prefix||k in a fresh slice.
func (p *PrefixDB) key(k []byte) []byte {
	return append(p.prefix[:len(p.prefix):len(p.prefix)], k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }

func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }

func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }

// ForEach visits the namespace's keys that start with prefix. Keys are
// passed without the namespace prefix.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close does nothing; the inner DB owns the lifecycle.
func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a batch over the namespace, atomic when the inner DB is
// a Batcher.
func (p *PrefixDB) NewBatch() Batch {
	return prefixBatch{inner: NewBatch(p.inner), ns: p}
}

type prefixBatch struct {
	inner Batch
	ns    *PrefixDB
}

func (b prefixBatch) Put(key, value []byte) error { return b.inner.Put(b.ns.key(key), value) }

func (b prefixBatch) Delete(key []byte) error { return b.inner.Delete(b.ns.key(key)) }

func (b prefixBatch) Commit() error { return b.inner.Commit() }
