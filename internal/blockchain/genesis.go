package blockchain

import (
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// NewGenesisBlock builds the genesis block. Its coinbase has a single
// zero-outpoint input, which is never looked up, and creates the initial
// allocation outputs.
func (b *Behavior) NewGenesisBlock(timestamp uint64, alloc []tx.Output) *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Type:    tx.TypeCoinbase,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}}},
		Outputs: alloc,
	}
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		Timestamp: timestamp,
		Height:    0,
		Bits:      b.params.GenesisBits,
	}, []*tx.Transaction{coinbase})
	blk.Seal()
	return blk
}
