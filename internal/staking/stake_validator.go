package staking

import (
	"bytes"
	"errors"
	"math/big"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// targetCacheSize bounds the decoded-target cache. Difficulty changes
// slowly, so a handful of entries covers every recent block.
const targetCacheSize = 64

// StakeValidator checks the stake behind proposed blocks and tracks the
// pieces of stake claimed by proposals in flight.
type StakeValidator struct {
	behavior Behavior
	chain    ActiveChain
	targets  *lru.Cache[uint32, *big.Int]

	mu    sync.Mutex
	known map[types.Outpoint]struct{}
}

// New creates a StakeValidator. The validator does not own behavior or
// chain; both must outlive it.
func New(behavior Behavior, chain ActiveChain) *StakeValidator {
	// lru.New only fails for a non-positive size.
	targets, _ := lru.New[uint32, *big.Int](targetCacheSize)
	return &StakeValidator{
		behavior: behavior,
		chain:    chain,
		targets:  targets,
		known:    make(map[types.Outpoint]struct{}),
	}
}

// target returns the decoded compact target. The returned value is shared
// and must not be modified.
func (v *StakeValidator) target(bits uint32) *big.Int {
	if t, ok := v.targets.Get(bits); ok {
		return t
	}
	t := blockchain.DecodeTarget(bits)
	v.targets.Add(bits, t)
	return t
}

// CheckKernel reports whether kernelHash, read as a big-endian integer,
// is at most the target decoded from bits scaled by depth. Deeper stake
// gets a proportionally larger target. Zero depth and bits that decode to
// a negative target never pass.
func (v *StakeValidator) CheckKernel(depth uint64, kernelHash types.Hash, bits uint32) bool {
	if depth == 0 {
		return false
	}
	target := v.target(bits)
	if target.Sign() < 0 {
		return false
	}
	bound := new(big.Int).Mul(target, new(big.Int).SetUint64(depth))
	kernel := new(big.Int).SetBytes(kernelHash[:])
	return kernel.Cmp(bound) <= 0
}

// CheckStake validates the stake claimed by blk: the staking input must
// reference a mature, unspent output owned by the proposer key whose
// kernel meets the block's difficulty, and the stake must not already be
// claimed by another proposal. CheckStake does not change the registry.
func (v *StakeValidator) CheckStake(blk *block.Block) BlockValidationResult {
	stake, result := v.checkStake(blk)
	if !result.IsValid() {
		return result
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.checkNotKnown(stake)
}

// CheckAndRememberStake runs CheckStake and, if the stake is valid,
// remembers it, all under the registry lock. Of several concurrent calls
// for the same stake, at most one succeeds.
func (v *StakeValidator) CheckAndRememberStake(blk *block.Block) BlockValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	stake, result := v.checkStake(blk)
	if !result.IsValid() {
		return result
	}
	if result = v.checkNotKnown(stake); !result.IsValid() {
		return result
	}
	v.RememberPieceOfStake(stake)
	return result
}

func (v *StakeValidator) checkNotKnown(stake types.Outpoint) BlockValidationResult {
	if v.IsPieceOfStakeKnown(stake) {
		return v.reject(stake, DuplicateStake)
	}
	return Valid()
}

// checkStake runs every stake check except the registry lookup.
func (v *StakeValidator) checkStake(blk *block.Block) (types.Outpoint, BlockValidationResult) {
	if blk == nil || blk.Header == nil || blk.Header.Height == 0 {
		return types.Outpoint{}, Invalid(NoBlockHeight)
	}
	if len(blk.Transactions) == 0 {
		return types.Outpoint{}, Invalid(NoTransactions)
	}
	if blk.Coinbase() == nil {
		return types.Outpoint{}, Invalid(FirstTransactionNotACoinbaseTransaction)
	}
	input, ok := blk.StakingInput()
	if !ok || input.PrevOut.IsZero() {
		return types.Outpoint{}, Invalid(NoStakingInput)
	}
	stake := input.PrevOut
	header := blk.Header

	out, err := v.chain.GetUTXO(stake)
	if err != nil {
		switch {
		case errors.Is(err, utxo.ErrSpent):
			klog.Staking.Debug().Stringer("stake", stake).Msg("Stake already spent")
		case errors.Is(err, utxo.ErrNotFound):
			klog.Staking.Debug().Stringer("stake", stake).Msg("Stake unknown")
		default:
			klog.Staking.Warn().Err(err).Stringer("stake", stake).Msg("Stake lookup failed")
		}
		return stake, Invalid(StakeNotFound)
	}

	depth := stakeDepth(header.Height-1, out.Height)
	if depth < v.behavior.StakeMaturity() {
		klog.Staking.Debug().
			Stringer("stake", stake).
			Uint64("depth", depth).
			Uint64("maturity", v.behavior.StakeMaturity()).
			Msg("Stake immature")
		return stake, Invalid(StakeImmature)
	}

	if !isEligible(out.Script, input.PubKey) {
		return stake, v.reject(stake, StakeNotEligible)
	}

	if err := v.behavior.CheckDifficulty(header.Bits); err != nil {
		klog.Staking.Debug().Err(err).Stringer("stake", stake).Msg("Bad block difficulty")
		return stake, Invalid(InvalidDifficultyTarget)
	}

	kernel := v.behavior.KernelHash(header.PrevHash, stake, header.Timestamp)
	if !v.CheckKernel(depth, kernel, header.Bits) {
		klog.Staking.Debug().
			Stringer("stake", stake).
			Stringer("kernel", kernel).
			Uint64("depth", depth).
			Msg("Kernel above target")
		return stake, Invalid(KernelCheckFailed)
	}
	return stake, Valid()
}

func (v *StakeValidator) reject(stake types.Outpoint, e BlockValidationError) BlockValidationResult {
	klog.Staking.Debug().Stringer("stake", stake).Str("reason", e.String()).Msg("Stake rejected")
	return Invalid(e)
}

// stakeDepth is the number of blocks from the output's block up to and
// including the parent. Outputs above the parent have depth 0.
func stakeDepth(parentHeight, outputHeight uint64) uint64 {
	if outputHeight > parentHeight {
		return 0
	}
	return parentHeight - outputHeight + 1
}

// isEligible reports whether pubKey may stake an output locked by script.
func isEligible(script types.Script, pubKey []byte) bool {
	if len(pubKey) == 0 {
		return false
	}
	switch script.Type {
	case types.ScriptTypeP2PKH:
		addr := crypto.AddressFromPubKey(pubKey)
		return bytes.Equal(script.Data, addr[:])
	case types.ScriptTypeStake:
		return bytes.Equal(script.Data, pubKey)
	default:
		return false
	}
}

// GetLock returns the registry lock. Hold it around IsPieceOfStakeKnown,
// RememberPieceOfStake and ForgetPieceOfStake.
func (v *StakeValidator) GetLock() sync.Locker {
	return &v.mu
}

// IsPieceOfStakeKnown reports whether stake is claimed by a proposal in
// flight. The caller must hold GetLock().
func (v *StakeValidator) IsPieceOfStakeKnown(stake types.Outpoint) bool {
	_, ok := v.known[stake]
	return ok
}

// RememberPieceOfStake claims stake. Remembering a known stake is a no-op.
// The caller must hold GetLock().
func (v *StakeValidator) RememberPieceOfStake(stake types.Outpoint) {
	v.known[stake] = struct{}{}
	klog.Staking.Debug().Stringer("stake", stake).Msg("Remembered piece of stake")
}

// ForgetPieceOfStake releases stake. Forgetting an unknown stake is a
// no-op. The caller must hold GetLock().
func (v *StakeValidator) ForgetPieceOfStake(stake types.Outpoint) {
	if _, ok := v.known[stake]; !ok {
		return
	}
	delete(v.known, stake)
	klog.Staking.Debug().Stringer("stake", stake).Msg("Forgot piece of stake")
}

// KnownStakes returns the claimed stakes in outpoint order.
func (v *StakeValidator) KnownStakes() []types.Outpoint {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]types.Outpoint, 0, len(v.known))
	for op := range v.known {
		out = append(out, op)
	}
	slices.SortFunc(out, types.Outpoint.Compare)
	return out
}
