package staking

import (
	"testing"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	"github.com/Klingon-tech/klingnet-stake/internal/chainview"
	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

const genesisTime = 1_700_000_000

// chainFixture is a regtest chain whose genesis locks two stakes to key.
type chainFixture struct {
	view     *chainview.View
	behavior *blockchain.Behavior
	key      *crypto.PrivateKey
	stakeA   types.Outpoint
	stakeB   types.Outpoint
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	behavior, err := blockchain.NewForNetwork(config.Regtest)
	if err != nil {
		t.Fatalf("behavior: %v", err)
	}
	key := newKey(t)
	genesis := behavior.NewGenesisBlock(genesisTime, []tx.Output{
		{Value: 1000 * config.Coin, Script: stakeScript(key)},
		{Value: 1000 * config.Coin, Script: stakeScript(key)},
	})
	view, err := chainview.New(storage.NewMemory(), behavior)
	if err != nil {
		t.Fatalf("chainview.New: %v", err)
	}
	if err := view.Init(genesis); err != nil {
		t.Fatalf("Init: %v", err)
	}
	txid := genesis.Transactions[0].Hash()
	return &chainFixture{
		view:     view,
		behavior: behavior,
		key:      key,
		stakeA:   types.Outpoint{TxID: txid, Index: 0},
		stakeB:   types.Outpoint{TxID: txid, Index: 1},
	}
}

// propose builds a block on the tip spending stake.
func (f *chainFixture) propose(t *testing.T, stake types.Outpoint) *block.Block {
	t.Helper()
	tip := f.view.Tip()
	return proposal(t, f.key, tip.Hash, tip.Height+1, tip.Timestamp+1,
		f.behavior.GenesisBits(), stake, 1000*config.Coin)
}

// accept runs the full validation pipeline on blk and connects it.
func (f *chainFixture) accept(t *testing.T, sv *StakeValidator, blk *block.Block) BlockValidationResult {
	t.Helper()
	bv := NewBlockValidator(f.behavior, crypto.SchnorrVerifier{})
	steps := []func() BlockValidationResult{
		func() BlockValidationResult { return bv.CheckBlockHeader(blk.Header, blk.Header.Timestamp) },
		func() BlockValidationResult { return bv.CheckBlock(blk) },
		func() BlockValidationResult { return bv.ContextualCheckBlock(blk, f.view.Tip(), f.view) },
		func() BlockValidationResult { return sv.CheckAndRememberStake(blk) },
	}
	var state State
	for _, step := range steps {
		if result := step(); !CheckResult(result, &state) {
			return result
		}
	}
	if err := f.view.Connect(blk); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return Valid()
}

func TestStakeValidator_ActiveChain(t *testing.T) {
	f := newChainFixture(t)
	sv := New(f.behavior, f.view)

	// Height 1: the genesis stake has depth 1, below the regtest maturity of 2.
	blk1 := f.propose(t, f.stakeA)
	if got := sv.CheckStake(blk1); got != Invalid(StakeImmature) {
		t.Fatalf("CheckStake(height 1) = %s, want STAKE_IMMATURE", got)
	}
	// Connect filler blocks without stake checks to age stake B.
	if err := f.view.Connect(blk1); err != nil {
		t.Fatalf("Connect(1): %v", err)
	}
	stakeA1 := types.Outpoint{TxID: blk1.Transactions[0].Hash(), Index: 0}
	blk2 := f.propose(t, stakeA1)
	if got := sv.CheckStake(blk2); got != Invalid(StakeImmature) {
		t.Fatalf("CheckStake(height 2, fresh stake) = %s, want STAKE_IMMATURE", got)
	}
	if err := f.view.Connect(blk2); err != nil {
		t.Fatalf("Connect(2): %v", err)
	}

	// Height 3: stake B has depth 3. On regtest three times the target
	// exceeds every kernel hash.
	blk3 := f.propose(t, f.stakeB)
	if got := f.accept(t, sv, blk3); !got.IsValid() {
		t.Fatalf("accept(height 3) = %s, want valid", got)
	}
	if f.view.Height() != 3 {
		t.Fatalf("Height() = %d, want 3", f.view.Height())
	}

	lock := sv.GetLock()
	lock.Lock()
	known := sv.IsPieceOfStakeKnown(f.stakeB)
	lock.Unlock()
	if !known {
		t.Fatal("accepted stake not remembered")
	}

	// Stake B is spent now.
	if got := sv.CheckStake(f.propose(t, f.stakeB)); got != Invalid(StakeNotFound) {
		t.Errorf("CheckStake(spent stake) = %s, want STAKE_NOT_FOUND", got)
	}
	if got := sv.CheckStake(f.propose(t, types.Outpoint{TxID: types.Hash{0x42}})); got != Invalid(StakeNotFound) {
		t.Errorf("CheckStake(unknown stake) = %s, want STAKE_NOT_FOUND", got)
	}

	// Disconnecting block 3 restores stake B, but its claim stays until
	// forgotten.
	if _, err := f.view.DisconnectTip(); err != nil {
		t.Fatalf("DisconnectTip: %v", err)
	}
	if got := sv.CheckStake(f.propose(t, f.stakeB)); got != Invalid(DuplicateStake) {
		t.Errorf("CheckStake(after reorg, still claimed) = %s, want DUPLICATE_STAKE", got)
	}
	lock.Lock()
	sv.ForgetPieceOfStake(f.stakeB)
	lock.Unlock()
	if got := f.accept(t, sv, f.propose(t, f.stakeB)); !got.IsValid() {
		t.Errorf("accept(after forget) = %s, want valid", got)
	}
}

func TestStakeValidator_RealKernel(t *testing.T) {
	f := newChainFixture(t)
	sv := New(f.behavior, f.view)

	kernel := f.behavior.KernelHash(f.view.Tip().Hash, f.stakeA, genesisTime+1)
	bits := f.behavior.GenesisBits()
	// Depth 3 on regtest always passes; depth 0 only passes a zero kernel.
	if !sv.CheckKernel(3, kernel, bits) {
		t.Error("CheckKernel(3) = false on regtest")
	}
	if sv.CheckKernel(0, kernel, bits) {
		t.Error("CheckKernel(0) = true for a non-zero kernel")
	}
}
