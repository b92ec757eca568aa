// Package blockchain holds the chain-wide consensus behavior: parameters,
// the compact difficulty codec, stake kernel derivation and the block index
// entry type shared by chain views and validators.
package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	btcchain "github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Difficulty errors.
var (
	ErrNonPositiveTarget = errors.New("difficulty target is not positive")
	ErrTargetAboveLimit  = errors.New("difficulty target above pow limit")
)

// Behavior exposes the consensus constants of a network and the pure
// functions derived from them.
type Behavior struct {
	params   *config.Parameters
	powLimit *big.Int
}

// New creates a Behavior for validated parameters.
func New(params *config.Parameters) (*Behavior, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil", config.ErrInvalidParameters)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := *params
	return &Behavior{
		params:   &p,
		powLimit: btcchain.CompactToBig(p.PowLimitBits),
	}, nil
}

// NewForNetwork creates a Behavior from the built-in parameters of a network.
func NewForNetwork(network config.NetworkType) (*Behavior, error) {
	params, err := config.ParametersFor(network)
	if err != nil {
		return nil, err
	}
	return New(params)
}

// Parameters returns a copy of the chain parameters.
func (b *Behavior) Parameters() config.Parameters {
	return *b.params
}

// StakeMaturity is the minimum stake depth for proposing.
func (b *Behavior) StakeMaturity() uint64 {
	return b.params.StakeMaturity
}

// MaxFutureBlockTime is the allowed clock drift for block timestamps, in seconds.
func (b *Behavior) MaxFutureBlockTime() uint64 {
	return b.params.MaxFutureBlockTime
}

// StakeTimestampInterval is the required granularity of block timestamps.
func (b *Behavior) StakeTimestampInterval() uint64 {
	return b.params.StakeTimestampInterval
}

// GenesisBits is the compact difficulty of the genesis block.
func (b *Behavior) GenesisBits() uint32 {
	return b.params.GenesisBits
}

// EpochOf returns the finalization epoch containing height.
func (b *Behavior) EpochOf(height uint64) uint32 {
	return b.params.EpochOf(height)
}

// PowLimit returns the easiest allowed target.
func (b *Behavior) PowLimit() *big.Int {
	return new(big.Int).Set(b.powLimit)
}

// DecodeTarget expands compact bits into a target. The result may be
// zero or negative for malformed bits.
func DecodeTarget(bits uint32) *big.Int {
	return btcchain.CompactToBig(bits)
}

// EncodeTarget compresses a target into compact bits.
func EncodeTarget(target *big.Int) uint32 {
	return btcchain.BigToCompact(target)
}

// CheckDifficulty verifies that bits decode to a positive target no easier
// than the pow limit.
func (b *Behavior) CheckDifficulty(bits uint32) error {
	target := DecodeTarget(bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: bits %#08x", ErrNonPositiveTarget, bits)
	}
	if target.Cmp(b.powLimit) > 0 {
		return fmt.Errorf("%w: bits %#08x, limit %#08x", ErrTargetAboveLimit, bits, b.params.PowLimitBits)
	}
	return nil
}

// KernelHash derives the stake kernel hash a proposer must bring under
// the target. It commits to the parent block, the staked outpoint and the
// block timestamp, so a proposer's only free variable is the timestamp.
// Format: BLAKE3(prev_hash(32) | txid(32) | index(4, big-endian) | timestamp(8, little-endian))
func (b *Behavior) KernelHash(prev types.Hash, stake types.Outpoint, timestamp uint64) types.Hash {
	buf := make([]byte, 0, types.HashSize+types.OutpointSize+8)
	buf = append(buf, prev[:]...)
	buf = append(buf, stake.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, timestamp)
	return crypto.Hash(buf)
}
