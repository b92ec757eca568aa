package staking

import (
	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Behavior exposes the consensus rules the validators depend on.
// Implemented by *blockchain.Behavior.
type Behavior interface {
	StakeMaturity() uint64
	CheckDifficulty(bits uint32) error
	KernelHash(prev types.Hash, stake types.Outpoint, timestamp uint64) types.Hash
	MaxFutureBlockTime() uint64
	StakeTimestampInterval() uint64
}

// ActiveChain is a read-only view of the best chain. Implemented by
// *chainview.View. Implementations synchronize internally; the validators
// never lock them.
type ActiveChain interface {
	Height() uint64
	Tip() *blockchain.BlockIndex
	AtHeight(height uint64) *blockchain.BlockIndex
	Contains(hash types.Hash) bool
	// GetUTXO returns an error wrapping utxo.ErrNotFound or utxo.ErrSpent
	// when the output cannot be staked.
	GetUTXO(outpoint types.Outpoint) (*utxo.UTXO, error)
}

var _ Behavior = (*blockchain.Behavior)(nil)
