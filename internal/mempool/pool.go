// Package mempool holds signed transactions waiting for a proposer to pick
// them into a block.
package mempool

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/bits"
	"slices"
	"sync"

	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// DefaultMaxSize caps the pool when New is given a non-positive size.
const DefaultMaxSize = 5000

var (
	ErrAlreadyExists     = errors.New("transaction already in mempool")
	ErrConflict          = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull          = errors.New("mempool is full")
	ErrValidation        = errors.New("transaction failed validation")
	ErrFeeTooLow         = errors.New("transaction fee below minimum")
	ErrCoinbaseNotMature = errors.New("coinbase output not mature")
)

// InputSource resolves the outputs that pool transactions spend.
// *chainview.View implements it.
type InputSource interface {
	Height() uint64
	GetUTXO(outpoint types.Outpoint) (*utxo.UTXO, error)
}

type entry struct {
	tx     *tx.Transaction
	hash   types.Hash
	fee    uint64
	weight uint64
}

// rate is the fee per unit of weight.
func (e *entry) rate() float64 { return float64(e.fee) / float64(e.weight) }

// byPriority orders entries best first: higher fee rate, then lower hash.
func byPriority(a, b *entry) int {
	if c := cmp.Compare(b.rate(), a.rate()); c != 0 {
		return c
	}
	return a.hash.Compare(b.hash)
}

// Pool is a fee-rate ordered set of unconfirmed transactions with no two
// spending the same outpoint.
type Pool struct {
	mu      sync.RWMutex
	entries map[types.Hash]*entry
	spentBy map[types.Outpoint]types.Hash
	maxSize int
	inputs  InputSource
	policy  *Policy

	minFeeRate       uint64
	coinbaseMaturity uint64
}

// New returns an empty pool over inputs holding up to maxSize transactions.
func New(inputs InputSource, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		entries: map[types.Hash]*entry{},
		spentBy: map[types.Outpoint]types.Hash{},
		maxSize: maxSize,
		inputs:  inputs,
		policy:  DefaultPolicy(),
	}
}

// SetMinFeeRate sets the fee per unit of weight below which Add refuses a
// transaction. Zero disables the check.
func (p *Pool) SetMinFeeRate(rate uint64) {
	p.mu.Lock()
	p.minFeeRate = rate
	p.mu.Unlock()
}

func (p *Pool) MinFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minFeeRate
}

// SetCoinbaseMaturity sets the confirmations a coinbase output needs
// before a pool transaction may spend it. Zero disables the check.
func (p *Pool) SetCoinbaseMaturity(maturity uint64) {
	p.mu.Lock()
	p.coinbaseMaturity = maturity
	p.mu.Unlock()
}

// Add checks t against policy, signatures and the input source, then
// admits it and returns its fee. A full pool makes room by dropping its
// cheapest entry, but only for a transaction paying a strictly higher
// rate.
func (p *Pool) Add(t *tx.Transaction) (uint64, error) {
	if t == nil || t.IsCoinbase() {
		return 0, fmt.Errorf("%w: coinbase transactions are not relayed", ErrValidation)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hash := t.Hash()
	if _, ok := p.entries[hash]; ok {
		return 0, ErrAlreadyExists
	}
	for _, in := range t.Inputs {
		if other, ok := p.spentBy[in.PrevOut]; ok {
			return 0, fmt.Errorf("%w: %s already spent by %s", ErrConflict, in.PrevOut, other)
		}
	}
	for _, check := range []func() error{
		func() error { return p.policy.Check(t) },
		t.Validate,
		t.VerifySignatures,
	} {
		if err := check(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	fee, err := p.resolveFee(t)
	if err != nil {
		return 0, err
	}
	e := &entry{tx: t, hash: hash, fee: fee, weight: t.Weight()}
	if BelowFeeRate(fee, e.weight, p.minFeeRate) {
		return 0, fmt.Errorf("%w: fee %d for weight %d at rate %d", ErrFeeTooLow, fee, e.weight, p.minFeeRate)
	}

	if len(p.entries) >= p.maxSize {
		worst := p.worst()
		if e.rate() <= worst.rate() {
			return 0, ErrPoolFull
		}
		klog.Mempool.Debug().Stringer("tx", worst.hash).Msg("Evicted for higher fee rate")
		p.drop(worst.hash)
	}

	p.entries[hash] = e
	for _, in := range t.Inputs {
		p.spentBy[in.PrevOut] = hash
	}
	klog.Mempool.Debug().Stringer("tx", hash).Uint64("fee", fee).Msg("Transaction accepted")
	return fee, nil
}

// resolveFee looks up every input, checks the spender owns it and returns
// inputs minus outputs.
func (p *Pool) resolveFee(t *tx.Transaction) (uint64, error) {
	next := p.inputs.Height() + 1
	var total uint64
	for i, in := range t.Inputs {
		u, err := p.inputs.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("%w: input %d: %v", ErrValidation, i, err)
		}
		if !spendableBy(u.Script, in.PubKey) {
			return 0, fmt.Errorf("%w: input %d: key does not own %s", ErrValidation, i, in.PrevOut)
		}
		if m := p.coinbaseMaturity; u.Coinbase && m > 0 && next < u.Height+m {
			return 0, fmt.Errorf("%w: %s has %d of %d confirmations",
				ErrCoinbaseNotMature, in.PrevOut, next-u.Height, m)
		}
		if total > math.MaxUint64-u.Value {
			return 0, fmt.Errorf("%w: input value overflow", ErrValidation)
		}
		total += u.Value
	}

	spent, err := t.TotalOutputValue()
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	case spent > total:
		return 0, fmt.Errorf("%w: outputs %d exceed inputs %d", ErrValidation, spent, total)
	}
	return total - spent, nil
}

// spendableBy reports whether pubKey may spend an output locked by script.
func spendableBy(script types.Script, pubKey []byte) bool {
	switch script.Type {
	case types.ScriptTypeP2PKH:
		addr := crypto.AddressFromPubKey(pubKey)
		return bytes.Equal(script.Data, addr[:])
	case types.ScriptTypeStake:
		return bytes.Equal(script.Data, pubKey)
	}
	return false
}

func (p *Pool) Remove(hash types.Hash) {
	p.mu.Lock()
	p.drop(hash)
	p.mu.Unlock()
}

func (p *Pool) drop(hash types.Hash) {
	e, ok := p.entries[hash]
	if !ok {
		return
	}
	for _, in := range e.tx.Inputs {
		delete(p.spentBy, in.PrevOut)
	}
	delete(p.entries, hash)
}

// RemoveConfirmed drops the transactions of a connected block and every
// pool entry that spends one of their inputs.
func (p *Pool) RemoveConfirmed(confirmed []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range confirmed {
		p.drop(t.Hash())
		for _, in := range t.Inputs {
			if other, ok := p.spentBy[in.PrevOut]; ok {
				p.drop(other)
			}
		}
	}
}

func (p *Pool) Has(hash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[hash] != nil
}

// Get returns the pooled transaction or nil.
func (p *Pool) Get(hash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e := p.entries[hash]; e != nil {
		return e.tx
	}
	return nil
}

// GetFee returns the fee of a pooled transaction, or 0 when absent.
func (p *Pool) GetFee(hash types.Hash) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e := p.entries[hash]; e != nil {
		return e.fee
	}
	return 0
}

func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// worst returns the entry that sorts last by priority. p.entries must be
// non-empty.
func (p *Pool) worst() *entry {
	var w *entry
	for _, e := range p.entries {
		if w == nil || byPriority(e, w) > 0 {
			w = e
		}
	}
	return w
}

// ranked returns every entry best first.
func (p *Pool) ranked() []*entry {
	return slices.SortedFunc(maps.Values(p.entries), byPriority)
}

// SelectForBlock returns up to limit transactions, best fee rate first.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	txs, _ := p.SelectWithFees(limit)
	return txs
}

// SelectWithFees is SelectForBlock that also returns each transaction's
// fee, read under the same lock.
func (p *Pool) SelectWithFees(limit int) ([]*tx.Transaction, []uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ranked := p.ranked()
	n := min(max(limit, 0), len(ranked))
	txs := make([]*tx.Transaction, 0, n)
	fees := make([]uint64, 0, n)
	for _, e := range ranked[:n] {
		txs = append(txs, e.tx)
		fees = append(fees, e.fee)
	}
	return txs, fees
}

// BelowFeeRate reports whether fee is less than rate*weight. A product
// past 64 bits exceeds every fee.
func BelowFeeRate(fee, weight, rate uint64) bool {
	hi, lo := bits.Mul64(rate, weight)
	return hi != 0 || fee < lo
}
