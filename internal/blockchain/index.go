package blockchain

import (
	"math/big"

	btcchain "github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// BlockIndex is the chain's record of a connected block header.
type BlockIndex struct {
	Hash      types.Hash `json:"hash"`
	PrevHash  types.Hash `json:"prev_hash"`
	Height    uint64     `json:"height"`
	Timestamp uint64     `json:"timestamp"`
	Bits      uint32     `json:"bits"`
	ChainWork *big.Int   `json:"chain_work"`
}

// NewBlockIndex builds the index entry for header on top of parent.
// parent is nil for the genesis block.
func NewBlockIndex(header *block.Header, parent *BlockIndex) *BlockIndex {
	work := btcchain.CalcWork(header.Bits)
	if parent != nil && parent.ChainWork != nil {
		work.Add(work, parent.ChainWork)
	}
	return &BlockIndex{
		Hash:      header.Hash(),
		PrevHash:  header.PrevHash,
		Height:    header.Height,
		Timestamp: header.Timestamp,
		Bits:      header.Bits,
		ChainWork: work,
	}
}
