// Package block defines block types and validation.
package block

import (
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// Coinbase returns the first transaction if it is a coinbase, nil otherwise.
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Transactions) == 0 || b.Transactions[0] == nil || !b.Transactions[0].IsCoinbase() {
		return nil
	}
	return b.Transactions[0]
}

// StakingInput returns the coinbase input that spends the proposer's stake.
// Returns false if the block has no coinbase or the coinbase has no inputs.
func (b *Block) StakingInput() (tx.Input, bool) {
	cb := b.Coinbase()
	if cb == nil || len(cb.Inputs) == 0 {
		return tx.Input{}, false
	}
	return cb.Inputs[0], true
}

// TxHashes returns the ids of the block's transactions in order.
func (b *Block) TxHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	return hashes
}

// WitnessHashes returns the witness hashes of the block's transactions in order.
func (b *Block) WitnessHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.WitnessHash()
	}
	return hashes
}

// Seal fills in the header's merkle roots from the block's transactions.
func (b *Block) Seal() {
	b.Header.MerkleRoot = ComputeMerkleRoot(b.TxHashes())
	b.Header.WitnessMerkleRoot = ComputeMerkleRoot(b.WitnessHashes())
}
