// Package keystore holds validator signing keys: an in-memory store, a
// password-protected on-disk store and BIP-39/BIP-32 key derivation.
package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// ErrKeyNotFound is returned when no usable key exists for an address.
var ErrKeyNotFound = errors.New("key not found")

// MemoryKeyStore keeps private keys in memory, indexed by address.
// It is safe for concurrent use.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[types.Address]*crypto.PrivateKey
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[types.Address]*crypto.PrivateKey)}
}

// Add stores key and returns its address.
func (ks *MemoryKeyStore) Add(key *crypto.PrivateKey) types.Address {
	addr := key.Address()
	ks.mu.Lock()
	ks.keys[addr] = key
	ks.mu.Unlock()
	klog.Keystore.Debug().Stringer("address", addr).Msg("Key added")
	return addr
}

// Remove drops the key for addr and zeroes it. Returns false if there
// was none.
func (ks *MemoryKeyStore) Remove(addr types.Address) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	key, ok := ks.keys[addr]
	if !ok {
		return false
	}
	key.Zero()
	delete(ks.keys, addr)
	return true
}

// Has reports whether a key for addr is held.
func (ks *MemoryKeyStore) Has(addr types.Address) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.keys[addr]
	return ok
}

// Addresses returns the held addresses in byte order.
func (ks *MemoryKeyStore) Addresses() []types.Address {
	ks.mu.RLock()
	out := make([]types.Address, 0, len(ks.keys))
	for addr := range ks.keys {
		out = append(out, addr)
	}
	ks.mu.RUnlock()
	slices.SortFunc(out, func(a, b types.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// PublicKey returns the compressed public key for addr.
func (ks *MemoryKeyStore) PublicKey(addr types.Address) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, addr)
	}
	return key.PublicKey(), nil
}

// Sign signs hash with the key for addr. The read lock is held while
// signing so Remove cannot zero the key mid-signature.
func (ks *MemoryKeyStore) Sign(addr types.Address, hash types.Hash) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, addr)
	}
	return key.Sign(hash)
}
