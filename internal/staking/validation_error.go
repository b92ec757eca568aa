// Package staking implements proof-of-stake block validation: the stake
// kernel check, stake eligibility, the registry of stake claimed by
// in-flight proposals and the closed set of block rejection reasons.
package staking

import "fmt"

// BlockValidationError is a reason for rejecting a block. Values are part
// of the network's reject vocabulary: new values are appended, existing
// values are never renumbered or renamed.
type BlockValidationError uint8

const (
	BlockSignatureVerificationFailed BlockValidationError = iota
	BlocktimeTooEarly
	BlocktimeTooFarIntoFuture
	CoinbaseTransactionAtPositionOtherThanFirst
	CoinbaseTransactionWithoutOutput
	DuplicateStake
	FinalizerCommitsMerkleRootMismatch
	FirstTransactionNotACoinbaseTransaction
	InvalidBlockHeight
	InvalidBlockTime
	InvalidBlockPublicKey
	MerkleRootMismatch
	MerkleRootDuplicateTransactions
	MismatchingHeight
	NoBlockHeight
	NoCoinbaseTransaction
	NoMetaInput
	NoSnapshotHash
	NoStakingInput
	NoTransactions
	PreviousBlockDoesntMatch
	PreviousBlockNotPartOfActiveChain
	RemoteStakingInputBiggerThanOutput
	StakeImmature
	StakeNotEligible
	StakeNotFound
	TransactionInputNotFound
	WitnessMerkleRootMismatch
	WitnessMerkleRootDuplicateTransactions
	KernelCheckFailed
	InvalidDifficultyTarget

	blockValidationErrorCount
)

type rejection struct {
	name    string
	message string
}

// rejections is indexed by BlockValidationError. The array length makes a
// missing entry a compile error.
var rejections = [blockValidationErrorCount]rejection{
	BlockSignatureVerificationFailed:            {"BLOCK_SIGNATURE_VERIFICATION_FAILED", "bad-blk-signature"},
	BlocktimeTooEarly:                           {"BLOCKTIME_TOO_EARLY", "time-too-old"},
	BlocktimeTooFarIntoFuture:                   {"BLOCKTIME_TOO_FAR_INTO_FUTURE", "time-too-new"},
	CoinbaseTransactionAtPositionOtherThanFirst: {"COINBASE_TRANSACTION_AT_POSITION_OTHER_THAN_FIRST", "bad-cb-multiple"},
	CoinbaseTransactionWithoutOutput:            {"COINBASE_TRANSACTION_WITHOUT_OUTPUT", "bad-cb-no-output"},
	DuplicateStake:                              {"DUPLICATE_STAKE", "bad-stake-duplicate"},
	FinalizerCommitsMerkleRootMismatch:          {"FINALIZER_COMMITS_MERKLE_ROOT_MISMATCH", "bad-finalizer-commits-merkle-root"},
	FirstTransactionNotACoinbaseTransaction:     {"FIRST_TRANSACTION_NOT_A_COINBASE_TRANSACTION", "bad-cb-not-first"},
	InvalidBlockHeight:                          {"INVALID_BLOCK_HEIGHT", "bad-blk-height"},
	InvalidBlockTime:                            {"INVALID_BLOCK_TIME", "bad-blk-time"},
	InvalidBlockPublicKey:                       {"INVALID_BLOCK_PUBLIC_KEY", "bad-blk-public-key"},
	MerkleRootMismatch:                          {"MERKLE_ROOT_MISMATCH", "bad-txnmrklroot"},
	MerkleRootDuplicateTransactions:             {"MERKLE_ROOT_DUPLICATE_TRANSACTIONS", "bad-txns-duplicate"},
	MismatchingHeight:                           {"MISMATCHING_HEIGHT", "bad-blk-height-mismatch"},
	NoBlockHeight:                               {"NO_BLOCK_HEIGHT", "bad-blk-no-height"},
	NoCoinbaseTransaction:                       {"NO_COINBASE_TRANSACTION", "bad-cb-missing"},
	NoMetaInput:                                 {"NO_META_INPUT", "bad-cb-no-meta-input"},
	NoSnapshotHash:                              {"NO_SNAPSHOT_HASH", "bad-cb-no-snapshot-hash"},
	NoStakingInput:                              {"NO_STAKING_INPUT", "bad-cb-no-staking-input"},
	NoTransactions:                              {"NO_TRANSACTIONS", "bad-blk-no-transactions"},
	PreviousBlockDoesntMatch:                    {"PREVIOUS_BLOCK_DOESNT_MATCH", "bad-blk-prev-mismatch"},
	PreviousBlockNotPartOfActiveChain:           {"PREVIOUS_BLOCK_NOT_PART_OF_ACTIVE_CHAIN", "bad-blk-prev-not-active"},
	RemoteStakingInputBiggerThanOutput:          {"REMOTE_STAKING_INPUT_BIGGER_THAN_OUTPUT", "bad-cb-remote-stake-input-too-big"},
	StakeImmature:                               {"STAKE_IMMATURE", "bad-stake-immature"},
	StakeNotEligible:                            {"STAKE_NOT_ELIGIBLE", "bad-stake-not-eligible"},
	StakeNotFound:                               {"STAKE_NOT_FOUND", "bad-stake-not-found"},
	TransactionInputNotFound:                    {"TRANSACTION_INPUT_NOT_FOUND", "bad-txns-inputs-missing"},
	WitnessMerkleRootMismatch:                   {"WITNESS_MERKLE_ROOT_MISMATCH", "bad-witness-merkle-match"},
	WitnessMerkleRootDuplicateTransactions:      {"WITNESS_MERKLE_ROOT_DUPLICATE_TRANSACTIONS", "bad-witness-duplicate"},
	KernelCheckFailed:                           {"KERNEL_CHECK_FAILED", "bad-stake-kernel"},
	InvalidDifficultyTarget:                     {"INVALID_DIFFICULTY_TARGET", "bad-diffbits"},
}

const unknownRejection = "bad-blk-invalid"

// BlockValidationErrors returns every rejection reason in declaration order.
func BlockValidationErrors() []BlockValidationError {
	out := make([]BlockValidationError, blockValidationErrorCount)
	for i := range out {
		out[i] = BlockValidationError(i)
	}
	return out
}

// Valid reports whether e is a member of the enumeration.
func (e BlockValidationError) Valid() bool {
	return e < blockValidationErrorCount
}

// String returns the stable upper-case name, e.g. "DUPLICATE_STAKE".
func (e BlockValidationError) String() string {
	if !e.Valid() {
		return fmt.Sprintf("BlockValidationError(%d)", uint8(e))
	}
	return rejections[e].name
}

// Error implements error so rejection reasons can be wrapped and matched
// with errors.Is.
func (e BlockValidationError) Error() string {
	return e.String()
}

// ParseBlockValidationError looks up a reason by its upper-case name.
func ParseBlockValidationError(name string) (BlockValidationError, bool) {
	for i, r := range rejections {
		if r.name == name {
			return BlockValidationError(i), true
		}
	}
	return 0, false
}

// GetRejectionMessageFor returns the reject reason reported to peers.
func GetRejectionMessageFor(e BlockValidationError) string {
	if !e.Valid() {
		return unknownRejection
	}
	return rejections[e].message
}
