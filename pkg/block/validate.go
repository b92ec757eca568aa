package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrNilTransaction      = errors.New("block has nil transaction")
	ErrNoTransactions      = errors.New("block has no transactions")
	ErrBadVersion          = errors.New("unsupported block version")
	ErrZeroTimestamp       = errors.New("block timestamp is zero")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrBlockTooLarge       = errors.New("block too large")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
)

const (
	// CurrentVersion is the version this software produces.
	CurrentVersion = 1
	// MaxVersion is the highest version accepted.
	MaxVersion = 1

	MaxBlockTxs = 10_000
	// MaxBlockWeight bounds the header plus every transaction's signing
	// bytes.
	MaxBlockWeight = 4_000_000
)

// Weight is the header's signing size plus each transaction's weight. Nil
// transactions count as zero.
func (b *Block) Weight() uint64 {
	w := uint64(HeaderSigningSize)
	for _, t := range b.Transactions {
		if t != nil {
			w += t.Weight()
		}
	}
	return w
}

// Validate checks what can be judged from the block alone: a supported
// header, the size limits, every transaction's structure, and that no
// outpoint is spent twice. Consensus rules that need chain state or the
// proposer's stake live in the staking package.
func (b *Block) Validate() error {
	h := b.Header
	switch {
	case h == nil:
		return ErrNilHeader
	case h.Version < 1 || h.Version > MaxVersion:
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, h.Version, MaxVersion)
	case h.Timestamp == 0:
		return ErrZeroTimestamp
	case len(b.Transactions) == 0:
		return ErrNoTransactions
	case len(b.Transactions) > MaxBlockTxs:
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), MaxBlockTxs)
	}

	for i, t := range b.Transactions {
		if t == nil {
			return fmt.Errorf("tx %d: %w", i, ErrNilTransaction)
		}
	}
	if w := b.Weight(); w > MaxBlockWeight {
		return fmt.Errorf("%w: weight %d, max %d", ErrBlockTooLarge, w, MaxBlockWeight)
	}

	spentIn := make(map[types.Outpoint]int)
	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		for _, in := range t.Inputs {
			if j, dup := spentIn[in.PrevOut]; dup {
				return fmt.Errorf("tx %d: %w: %s also spent by tx %d",
					i, ErrDuplicateBlockInput, in.PrevOut, j)
			}
			spentIn[in.PrevOut] = i
		}
	}
	return nil
}
