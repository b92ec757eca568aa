package utxo

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Key layout. Every key ends with the outpoint encoding txid(32)|index(4).
var (
	prefixUTXO  = []byte("u/") // u/<outpoint> -> UTXO JSON
	prefixSpent = []byte("s/") // s/<outpoint> -> spending height, big-endian
	prefixAddr  = []byte("a/") // a/<address20><outpoint> -> empty
	prefixStake = []byte("k/") // k/<pubkey33><outpoint> -> empty
)

// Store is a Set kept in a storage.DB. Besides the outputs themselves it
// remembers which outpoints were spent and at what height, and indexes
// outputs by owning address and by staking key.
type Store struct {
	db storage.DB
}

func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func dbKey(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func utxoKey(op types.Outpoint) []byte  { return dbKey(prefixUTXO, op.Bytes()) }
func spentKey(op types.Outpoint) []byte { return dbKey(prefixSpent, op.Bytes()) }

// indexKeys lists the secondary index entries u is filed under: its
// address for P2PKH scripts and its public key for stake scripts.
func indexKeys(u *UTXO) [][]byte {
	s := u.Script
	switch {
	case s.Type == types.ScriptTypeP2PKH && len(s.Data) == types.AddressSize:
		return [][]byte{dbKey(prefixAddr, s.Data, u.Outpoint.Bytes())}
	case s.Type == types.ScriptTypeStake && len(s.Data) == crypto.PublicKeySize:
		return [][]byte{dbKey(prefixStake, s.Data, u.Outpoint.Bytes())}
	}
	return nil
}

func decode(data []byte) (*UTXO, error) {
	u := new(UTXO)
	if err := json.Unmarshal(data, u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return u, nil
}

// Get returns the unspent output at outpoint, ErrSpent if it existed and
// was spent, or ErrNotFound if it never existed.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err == nil {
		return decode(data)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	spent, err := s.db.Has(spentKey(outpoint))
	switch {
	case err != nil:
		return nil, fmt.Errorf("utxo spent lookup: %w", err)
	case spent:
		return nil, fmt.Errorf("%w: %s", ErrSpent, outpoint)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, outpoint)
}

// SpentHeight returns the height of the block that spent outpoint, or
// ErrNotFound if it is not spent.
func (s *Store) SpentHeight(outpoint types.Outpoint) (uint64, error) {
	data, err := s.db.Get(spentKey(outpoint))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return 0, fmt.Errorf("%w: %s", ErrNotFound, outpoint)
	case err != nil:
		return 0, fmt.Errorf("utxo spent get: %w", err)
	case len(data) != 8:
		return 0, fmt.Errorf("utxo spent record for %s is %d bytes", outpoint, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Put stores u with its index entries and forgets any earlier spend of the
// same outpoint.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	b := storage.NewBatch(s.db)
	b.Put(utxoKey(u.Outpoint), data)
	b.Delete(spentKey(u.Outpoint))
	for _, k := range indexKeys(u) {
		b.Put(k, nil)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("utxo put %s: %w", u.Outpoint, err)
	}
	return nil
}

// unlink stages removal of u and its index entries.
func unlink(b storage.Batch, u *UTXO) {
	for _, k := range indexKeys(u) {
		b.Delete(k)
	}
	b.Delete(utxoKey(u.Outpoint))
}

// Spend removes the output at outpoint, records height as its spending
// height and returns the removed output for undo data.
func (s *Store) Spend(outpoint types.Outpoint, height uint64) (*UTXO, error) {
	u, err := s.Get(outpoint)
	if err != nil {
		return nil, err
	}
	b := storage.NewBatch(s.db)
	unlink(b, u)
	b.Put(spentKey(outpoint), binary.BigEndian.AppendUint64(nil, height))
	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("utxo spend %s: %w", outpoint, err)
	}
	return u, nil
}

// Delete erases every trace of outpoint, spent or not. Disconnecting the
// block that created an output calls it.
func (s *Store) Delete(outpoint types.Outpoint) error {
	b := storage.NewBatch(s.db)
	u, err := s.Get(outpoint)
	switch {
	case err == nil:
		unlink(b, u)
	case !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrSpent):
		return err
	}
	b.Delete(spentKey(outpoint))
	if err := b.Commit(); err != nil {
		return fmt.Errorf("utxo delete %s: %w", outpoint, err)
	}
	return nil
}

// Has reports whether outpoint is unspent.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach calls fn for every unspent output in outpoint order.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(_, value []byte) error {
		u, err := decode(value)
		if err != nil {
			return err
		}
		return fn(u)
	})
}

// GetStakes returns the stake outputs locked to a compressed public key.
func (s *Store) GetStakes(pubKey []byte) ([]*UTXO, error) {
	if len(pubKey) != crypto.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", crypto.PublicKeySize, len(pubKey))
	}
	return s.scan(dbKey(prefixStake, pubKey))
}

// GetByAddress returns the P2PKH outputs paying addr.
func (s *Store) GetByAddress(addr types.Address) ([]*UTXO, error) {
	return s.scan(dbKey(prefixAddr, addr[:]))
}

// scan loads the outputs named by the index entries under prefix.
func (s *Store) scan(prefix []byte) ([]*UTXO, error) {
	var out []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, err := types.OutpointFromBytes(key[len(prefix):])
		if err != nil {
			return nil
		}
		if u, err := s.Get(op); err == nil {
			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index %q: %w", prefix[:2], err)
	}
	return out, nil
}
