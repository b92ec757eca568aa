package staking

import (
	"errors"

	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// BlockValidator runs the block checks that do not involve stake:
// header sanity, block structure and proposer signature, and the
// placement of a block relative to its parent.
type BlockValidator struct {
	behavior Behavior
	verifier crypto.Verifier
}

// NewBlockValidator creates a BlockValidator.
func NewBlockValidator(behavior Behavior, verifier crypto.Verifier) *BlockValidator {
	return &BlockValidator{behavior: behavior, verifier: verifier}
}

// CheckBlockHeader checks a header on its own. adjustedTime is the
// network-adjusted time in unix seconds.
func (bv *BlockValidator) CheckBlockHeader(h *block.Header, adjustedTime uint64) BlockValidationResult {
	if h == nil || h.Height == 0 {
		return Invalid(NoBlockHeight)
	}
	if h.Timestamp == 0 {
		return Invalid(InvalidBlockTime)
	}
	if interval := bv.behavior.StakeTimestampInterval(); interval > 1 && h.Timestamp%interval != 0 {
		return Invalid(InvalidBlockTime)
	}
	if drift := bv.behavior.MaxFutureBlockTime(); h.Timestamp > drift && h.Timestamp-drift > adjustedTime {
		return Invalid(BlocktimeTooFarIntoFuture)
	}
	return Valid()
}

// CheckBlock checks the structure of blk and the proposer's signature.
func (bv *BlockValidator) CheckBlock(blk *block.Block) BlockValidationResult {
	if blk == nil || blk.Header == nil {
		return Invalid(NoBlockHeight)
	}
	if len(blk.Transactions) == 0 {
		return Invalid(NoTransactions)
	}
	coinbase := blk.Coinbase()
	if coinbase == nil {
		return Invalid(FirstTransactionNotACoinbaseTransaction)
	}
	for _, t := range blk.Transactions[1:] {
		if t == nil {
			return Invalid(MerkleRootMismatch)
		}
		if t.IsCoinbase() {
			return Invalid(CoinbaseTransactionAtPositionOtherThanFirst)
		}
	}
	if len(coinbase.Outputs) == 0 {
		return Invalid(CoinbaseTransactionWithoutOutput)
	}
	input, ok := blk.StakingInput()
	if !ok || input.PrevOut.IsZero() {
		return Invalid(NoStakingInput)
	}

	root, mutated := block.ComputeMerkleRootMutated(blk.TxHashes())
	if mutated {
		return Invalid(MerkleRootDuplicateTransactions)
	}
	if root != blk.Header.MerkleRoot {
		return Invalid(MerkleRootMismatch)
	}
	witnessRoot, mutated := block.ComputeMerkleRootMutated(blk.WitnessHashes())
	if mutated {
		return Invalid(WitnessMerkleRootDuplicateTransactions)
	}
	if witnessRoot != blk.Header.WitnessMerkleRoot {
		return Invalid(WitnessMerkleRootMismatch)
	}

	pubKey, err := crypto.ParsePublicKey(input.PubKey)
	if err != nil {
		return Invalid(InvalidBlockPublicKey)
	}
	if !bv.verifier.Verify(blk.Header.Hash(), blk.Header.Signature, pubKey) {
		klog.Staking.Debug().
			Stringer("block", blk.Hash()).
			Uint64("height", blk.Header.Height).
			Msg("Bad proposer signature")
		return Invalid(BlockSignatureVerificationFailed)
	}
	return Valid()
}

// ContextualCheckBlock checks blk against its parent prev and the active
// chain: linkage, height, timestamp order and the availability of every
// input the block spends.
func (bv *BlockValidator) ContextualCheckBlock(blk *block.Block, prev *blockchain.BlockIndex, chain ActiveChain) BlockValidationResult {
	if blk == nil || blk.Header == nil {
		return Invalid(NoBlockHeight)
	}
	h := blk.Header
	if prev == nil || h.PrevHash != prev.Hash {
		return Invalid(PreviousBlockDoesntMatch)
	}
	if !chain.Contains(prev.Hash) {
		return Invalid(PreviousBlockNotPartOfActiveChain)
	}
	if h.Height != prev.Height+1 {
		return Invalid(MismatchingHeight)
	}
	if h.Timestamp <= prev.Timestamp {
		return Invalid(BlocktimeTooEarly)
	}
	return bv.checkInputs(blk, chain)
}

// checkInputs verifies that every input spends an output that is unspent
// on the active chain or created earlier in the same block, and that no
// output is spent twice.
func (bv *BlockValidator) checkInputs(blk *block.Block, chain ActiveChain) BlockValidationResult {
	created := make(map[types.Outpoint]struct{})
	spent := make(map[types.Outpoint]struct{})
	for _, t := range blk.Transactions {
		if t == nil {
			continue
		}
		for _, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				continue
			}
			if _, ok := spent[in.PrevOut]; ok {
				return Invalid(TransactionInputNotFound)
			}
			spent[in.PrevOut] = struct{}{}
			if _, ok := created[in.PrevOut]; ok {
				delete(created, in.PrevOut)
				continue
			}
			if _, err := chain.GetUTXO(in.PrevOut); err != nil {
				if !errors.Is(err, utxo.ErrNotFound) && !errors.Is(err, utxo.ErrSpent) {
					klog.Staking.Warn().Err(err).Stringer("outpoint", in.PrevOut).Msg("Input lookup failed")
				}
				return Invalid(TransactionInputNotFound)
			}
		}
		txID := t.Hash()
		for i := range t.Outputs {
			created[types.Outpoint{TxID: txID, Index: uint32(i)}] = struct{}{}
		}
	}
	return Valid()
}
