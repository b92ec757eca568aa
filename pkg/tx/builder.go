package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Builder assembles a transaction with chained calls.
type Builder struct {
	tx Transaction
}

// NewBuilder starts a version 1 regular transaction.
func NewBuilder() *Builder {
	return &Builder{tx: Transaction{Version: 1, Type: TypeRegular}}
}

// NewCoinbaseBuilder starts a coinbase whose first input spends stake.
func NewCoinbaseBuilder(stake types.Outpoint) *Builder {
	b := &Builder{tx: Transaction{Version: 1, Type: TypeCoinbase}}
	return b.AddInput(stake)
}

func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

func (b *Builder) AddOutput(value uint64, script types.Script) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, Script: script})
	return b
}

func (b *Builder) SetLockTime(lockTime uint64) *Builder {
	b.tx.LockTime = lockTime
	return b
}

// Sign puts key's signature over the transaction ID on every input. Call
// it after the last AddInput or AddOutput.
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	sig, err := key.Sign(b.tx.Hash())
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pub := key.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature, b.tx.Inputs[i].PubKey = sig, pub
	}
	return nil
}

// Build returns the transaction without validating it. Later builder calls
// do not affect the result.
func (b *Builder) Build() *Transaction {
	t := b.tx
	t.Inputs = append([]Input(nil), b.tx.Inputs...)
	t.Outputs = append([]Output(nil), b.tx.Outputs...)
	return &t
}
