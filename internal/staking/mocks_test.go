package staking

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// mainnetGenesisBits is the compact difficulty of the mainnet genesis block.
const mainnetGenesisBits = 0x1d00ffff

type mockBehavior struct {
	maturity uint64
	interval uint64
	kernel   types.Hash
	diffErr  error
}

func (m *mockBehavior) StakeMaturity() uint64          { return m.maturity }
func (m *mockBehavior) CheckDifficulty(uint32) error   { return m.diffErr }
func (m *mockBehavior) MaxFutureBlockTime() uint64     { return 7200 }
func (m *mockBehavior) StakeTimestampInterval() uint64 { return m.interval }

func (m *mockBehavior) KernelHash(types.Hash, types.Outpoint, uint64) types.Hash {
	return m.kernel
}

type mockChain struct {
	mu      sync.Mutex
	tip     *blockchain.BlockIndex
	blocks  map[types.Hash]*blockchain.BlockIndex
	utxos   map[types.Outpoint]*utxo.UTXO
	spent   map[types.Outpoint]bool
	lookups atomic.Int64
}

func newMockChain() *mockChain {
	return &mockChain{
		blocks: make(map[types.Hash]*blockchain.BlockIndex),
		utxos:  make(map[types.Outpoint]*utxo.UTXO),
		spent:  make(map[types.Outpoint]bool),
	}
}

func (m *mockChain) addBlock(bi *blockchain.BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[bi.Hash] = bi
	if m.tip == nil || bi.Height > m.tip.Height {
		m.tip = bi
	}
}

func (m *mockChain) addUTXO(u *utxo.UTXO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utxos[u.Outpoint] = u
}

func (m *mockChain) spend(op types.Outpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.utxos, op)
	m.spent[op] = true
}

func (m *mockChain) Height() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tip == nil {
		return 0
	}
	return m.tip.Height
}

func (m *mockChain) Tip() *blockchain.BlockIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip
}

func (m *mockChain) AtHeight(height uint64) *blockchain.BlockIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bi := range m.blocks {
		if bi.Height == height {
			return bi
		}
	}
	return nil
}

func (m *mockChain) Contains(hash types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[hash]
	return ok
}

func (m *mockChain) GetUTXO(op types.Outpoint) (*utxo.UTXO, error) {
	m.lookups.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.utxos[op]; ok {
		return u, nil
	}
	if m.spent[op] {
		return nil, fmt.Errorf("%w: %s", utxo.ErrSpent, op)
	}
	return nil, fmt.Errorf("%w: %s", utxo.ErrNotFound, op)
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func stakeScript(key *crypto.PrivateKey) types.Script {
	return types.Script{Type: types.ScriptTypeStake, Data: key.PublicKey()}
}

// proposal builds a sealed, signed block at height whose coinbase spends
// stake with key and re-locks value to it.
func proposal(t *testing.T, key *crypto.PrivateKey, prev types.Hash, height, timestamp uint64, bits uint32, stake types.Outpoint, value uint64) *block.Block {
	t.Helper()
	cb := tx.NewCoinbaseBuilder(stake).AddOutput(value, stakeScript(key))
	if err := cb.Sign(key); err != nil {
		t.Fatalf("sign coinbase: %v", err)
	}
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  prev,
		Timestamp: timestamp,
		Height:    height,
		Bits:      bits,
	}, []*tx.Transaction{cb.Build()})
	blk.Seal()
	signHeader(t, key, blk)
	return blk
}

func signHeader(t *testing.T, key *crypto.PrivateKey, blk *block.Block) {
	t.Helper()
	sig, err := key.Sign(blk.Header.Hash())
	if err != nil {
		t.Fatalf("sign header: %v", err)
	}
	blk.Header.Signature = sig
}
