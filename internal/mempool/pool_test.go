package mempool

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// mockInputs is an in-memory InputSource for tests.
type mockInputs struct {
	height uint64
	utxos  map[types.Outpoint]*utxo.UTXO
}

func newMockInputs() *mockInputs {
	return &mockInputs{utxos: make(map[types.Outpoint]*utxo.UTXO)}
}

func (m *mockInputs) add(op types.Outpoint, value uint64, addr types.Address) *utxo.UTXO {
	u := &utxo.UTXO{
		Outpoint: op,
		Value:    value,
		Script:   types.Script{Type: types.ScriptTypeP2PKH, Data: addr.Bytes()},
	}
	m.utxos[op] = u
	return u
}

func (m *mockInputs) Height() uint64 { return m.height }

func (m *mockInputs) GetUTXO(op types.Outpoint) (*utxo.UTXO, error) {
	u, ok := m.utxos[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utxo.ErrNotFound, op)
	}
	return u, nil
}

func outpoint(b byte) types.Outpoint {
	return types.Outpoint{TxID: types.Hash{b}, Index: 0}
}

// buildTx creates a signed transaction spending the given outpoint.
func buildTx(t *testing.T, key *crypto.PrivateKey, prevOut types.Outpoint, outputValue uint64) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder().
		AddInput(prevOut).
		AddOutput(outputValue, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)})
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestPool_Add(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())

	pool := New(inputs, 100)
	fee, err := pool.Add(buildTx(t, key, outpoint(1), 4000))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
	if pool.Count() != 1 {
		t.Errorf("count = %d, want 1", pool.Count())
	}
}

func TestPool_Add_Rejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)

	tests := []struct {
		name  string
		setup func(*mockInputs)
		tx    func() *tx.Transaction
		want  error
	}{
		{
			name:  "unknown input",
			setup: func(*mockInputs) {},
			tx:    func() *tx.Transaction { return buildTx(t, key, outpoint(1), 1000) },
			want:  ErrValidation,
		},
		{
			name:  "foreign input",
			setup: func(m *mockInputs) { m.add(outpoint(1), 5000, other.Address()) },
			tx:    func() *tx.Transaction { return buildTx(t, key, outpoint(1), 1000) },
			want:  ErrValidation,
		},
		{
			name:  "outputs exceed inputs",
			setup: func(m *mockInputs) { m.add(outpoint(1), 500, key.Address()) },
			tx:    func() *tx.Transaction { return buildTx(t, key, outpoint(1), 1000) },
			want:  ErrValidation,
		},
		{
			name: "immature coinbase",
			setup: func(m *mockInputs) {
				m.height = 5
				u := m.add(outpoint(1), 5000, key.Address())
				u.Coinbase = true
				u.Height = 5
			},
			tx:   func() *tx.Transaction { return buildTx(t, key, outpoint(1), 1000) },
			want: ErrCoinbaseNotMature,
		},
		{
			name:  "coinbase",
			setup: func(*mockInputs) {},
			tx: func() *tx.Transaction {
				return tx.NewCoinbaseBuilder(outpoint(1)).
					AddOutput(1, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}).
					Build()
			},
			want: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := newMockInputs()
			tt.setup(inputs)
			pool := New(inputs, 100)
			pool.SetCoinbaseMaturity(10)
			_, err := pool.Add(tt.tx())
			if !errors.Is(err, tt.want) {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
			if pool.Count() != 0 {
				t.Errorf("count = %d, want 0", pool.Count())
			}
		})
	}
}

func TestPool_Add_Duplicate(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())

	pool := New(inputs, 100)
	transaction := buildTx(t, key, outpoint(1), 4000)
	if _, err := pool.Add(transaction); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := pool.Add(transaction); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
}

func TestPool_Add_DoubleSpend(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())

	pool := New(inputs, 100)
	if _, err := pool.Add(buildTx(t, key, outpoint(1), 4000)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := pool.Add(buildTx(t, key, outpoint(1), 3000)); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
}

func TestPool_Add_PoolFull(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	for i := byte(1); i <= 3; i++ {
		inputs.add(outpoint(i), 5000, key.Address())
	}

	pool := New(inputs, 2)
	pool.Add(buildTx(t, key, outpoint(1), 4000))
	pool.Add(buildTx(t, key, outpoint(2), 4000))

	if _, err := pool.Add(buildTx(t, key, outpoint(3), 4000)); !errors.Is(err, ErrPoolFull) {
		t.Errorf("expected ErrPoolFull, got: %v", err)
	}
}

func TestPool_Add_EvictsLowerFeeRate(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())
	inputs.add(outpoint(2), 5000, key.Address())
	inputs.add(outpoint(3), 9000, key.Address())

	pool := New(inputs, 2)
	low := buildTx(t, key, outpoint(1), 4900)
	mid := buildTx(t, key, outpoint(2), 4000)
	high := buildTx(t, key, outpoint(3), 4000)
	pool.Add(low)
	pool.Add(mid)

	if _, err := pool.Add(high); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if pool.Has(low.Hash()) {
		t.Error("lowest fee-rate tx should have been evicted")
	}
	if !pool.Has(mid.Hash()) || !pool.Has(high.Hash()) {
		t.Error("higher fee-rate txs should remain")
	}
}

func TestPool_Remove_ClearsConflictIndex(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())

	pool := New(inputs, 100)
	tx1 := buildTx(t, key, outpoint(1), 4000)
	pool.Add(tx1)
	pool.Remove(tx1.Hash())

	if pool.Has(tx1.Hash()) {
		t.Error("Has should return false after Remove")
	}
	if _, err := pool.Add(buildTx(t, key, outpoint(1), 3000)); err != nil {
		t.Fatalf("Add after Remove should succeed: %v", err)
	}
}

func TestPool_RemoveConfirmed(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())
	inputs.add(outpoint(2), 3000, key.Address())

	pool := New(inputs, 100)
	tx1 := buildTx(t, key, outpoint(1), 4000)
	tx2 := buildTx(t, key, outpoint(2), 2000)
	pool.Add(tx1)
	pool.Add(tx2)

	// A block confirms a different spend of outpoint 2.
	confirmed := buildTx(t, key, outpoint(2), 2500)
	pool.RemoveConfirmed([]*tx.Transaction{tx1, confirmed})

	if pool.Count() != 0 {
		t.Errorf("count = %d, want 0", pool.Count())
	}
}

func TestPool_Get(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())

	pool := New(inputs, 100)
	transaction := buildTx(t, key, outpoint(1), 4000)
	pool.Add(transaction)

	got := pool.Get(transaction.Hash())
	if got == nil || got.Hash() != transaction.Hash() {
		t.Fatal("Get returned wrong transaction")
	}
	if pool.Get(types.Hash{0xff}) != nil {
		t.Error("Get should return nil for unknown hash")
	}
	if pool.GetFee(transaction.Hash()) != 1000 {
		t.Errorf("GetFee = %d, want 1000", pool.GetFee(transaction.Hash()))
	}
	if pool.GetFee(types.Hash{0xff}) != 0 {
		t.Error("GetFee should return 0 for unknown hash")
	}
}

func TestPool_SelectForBlock(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())
	inputs.add(outpoint(2), 3000, key.Address())
	inputs.add(outpoint(3), 8000, key.Address())

	pool := New(inputs, 100)
	tx1 := buildTx(t, key, outpoint(1), 4000) // fee 1000
	tx2 := buildTx(t, key, outpoint(2), 2500) // fee 500
	tx3 := buildTx(t, key, outpoint(3), 5000) // fee 3000
	pool.Add(tx1)
	pool.Add(tx2)
	pool.Add(tx3)

	selected := pool.SelectForBlock(2)
	if len(selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selected))
	}
	if selected[0].Hash() != tx3.Hash() {
		t.Error("highest fee-rate tx should be first")
	}
	if selected[1].Hash() != tx1.Hash() {
		t.Error("second highest fee-rate tx should be second")
	}

	for limit, want := range map[int]int{100: 3, 0: 0, -1: 0} {
		if got := len(pool.SelectForBlock(limit)); got != want {
			t.Errorf("SelectForBlock(%d) returned %d, want %d", limit, got, want)
		}
	}
}

func TestPool_SelectWithFees(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())
	inputs.add(outpoint(2), 3000, key.Address())

	pool := New(inputs, 100)
	cheap := buildTx(t, key, outpoint(2), 2500)
	dear := buildTx(t, key, outpoint(1), 3000)
	for _, transaction := range []*tx.Transaction{cheap, dear} {
		if _, err := pool.Add(transaction); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	txs, fees := pool.SelectWithFees(10)
	if len(txs) != 2 || len(fees) != 2 {
		t.Fatalf("got %d txs and %d fees, want 2 and 2", len(txs), len(fees))
	}
	if txs[0].Hash() != dear.Hash() || fees[0] != 2000 {
		t.Errorf("first = %s fee %d, want %s fee 2000", txs[0].Hash(), fees[0], dear.Hash())
	}
	if txs[1].Hash() != cheap.Hash() || fees[1] != 500 {
		t.Errorf("second = %s fee %d, want %s fee 500", txs[1].Hash(), fees[1], cheap.Hash())
	}
}

func TestBelowFeeRate(t *testing.T) {
	tests := []struct {
		fee, weight, rate uint64
		want              bool
	}{
		{fee: 0, weight: 100, rate: 0, want: false},
		{fee: 99, weight: 100, rate: 1, want: true},
		{fee: 100, weight: 100, rate: 1, want: false},
		{fee: math.MaxUint64, weight: 1, rate: 1 << 63, want: false},
		{fee: math.MaxUint64, weight: 2, rate: 1 << 63, want: true},
		{fee: 1000, weight: 90, rate: 1 << 63, want: true},
	}
	for _, tt := range tests {
		if got := BelowFeeRate(tt.fee, tt.weight, tt.rate); got != tt.want {
			t.Errorf("BelowFeeRate(%d, %d, %d) = %v, want %v", tt.fee, tt.weight, tt.rate, got, tt.want)
		}
	}
}

func TestPool_Evict(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	for i := byte(1); i <= 5; i++ {
		inputs.add(outpoint(i), 5000+uint64(i)*1000, key.Address())
	}

	pool := New(inputs, 5)
	for i := byte(1); i <= 5; i++ {
		pool.Add(buildTx(t, key, outpoint(i), 4000))
	}
	if pool.Count() != 5 {
		t.Fatalf("count = %d, want 5", pool.Count())
	}
	if got := pool.Evict(); got != 0 {
		t.Errorf("Evict() = %d, want 0", got)
	}

	pool.maxSize = 3
	if got := pool.Evict(); got != 2 {
		t.Errorf("Evict() = %d, want 2", got)
	}
	// The two cheapest spends (outpoints 1 and 2) go first.
	for i := byte(3); i <= 5; i++ {
		if !pool.Has(buildTx(t, key, outpoint(i), 4000).Hash()) {
			t.Errorf("tx spending outpoint %d should remain", i)
		}
	}
}

func TestPool_MinFeeRate(t *testing.T) {
	key := newKey(t)
	inputs := newMockInputs()
	inputs.add(outpoint(1), 5000, key.Address())
	inputs.add(outpoint(2), 5000, key.Address())

	pool := New(inputs, 100)
	pool.SetMinFeeRate(10)
	if pool.MinFeeRate() != 10 {
		t.Errorf("MinFeeRate() = %d, want 10", pool.MinFeeRate())
	}

	// Weight 90: a fee of 100 is below 900.
	if _, err := pool.Add(buildTx(t, key, outpoint(1), 4900)); !errors.Is(err, ErrFeeTooLow) {
		t.Errorf("expected ErrFeeTooLow, got: %v", err)
	}
	if _, err := pool.Add(buildTx(t, key, outpoint(2), 4000)); err != nil {
		t.Errorf("Add with fee 1000: %v", err)
	}
}

func TestPolicy_Check(t *testing.T) {
	key := newKey(t)
	small := buildTx(t, key, outpoint(1), 1000)

	policy := DefaultPolicy()
	if err := policy.Check(small); err != nil {
		t.Errorf("valid tx should pass policy: %v", err)
	}

	policy.MaxTxWeight = 1
	if err := policy.Check(small); err == nil {
		t.Error("oversized tx should fail policy")
	}

	big := tx.NewBuilder().
		AddInput(outpoint(1)).
		AddOutput(1, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, MaxScriptData+1)}).
		Build()
	if err := DefaultPolicy().Check(big); err == nil {
		t.Error("oversized script data should fail policy")
	}
}
