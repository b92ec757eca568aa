package staking

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/internal/mempool"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

// ErrNoMempool is reported when a picker has no transaction source.
var ErrNoMempool = errors.New("no mempool")

// PickTransactionsParameters bounds the transactions picked for a block.
type PickTransactionsParameters struct {
	// MinFeeRate is the minimum fee per unit of weight. 0 accepts any fee.
	MinFeeRate uint64
	// MaxWeight is the total weight available for transactions. 0 means
	// block.MaxBlockWeight.
	MaxWeight uint64
}

// PickTransactionsResult lists the picked transactions and, index for
// index, their fees. Error is set instead if picking failed.
type PickTransactionsResult struct {
	Transactions []*tx.Transaction
	Fees         []uint64
	Error        error
}

// TransactionPicker chooses the transactions a proposer includes in a
// block. The proposer builds the coinbase itself.
type TransactionPicker interface {
	PickTransactions(params PickTransactionsParameters) PickTransactionsResult
}

// MempoolSelector is the view of the mempool the picker needs.
// SelectWithFees returns transactions best first with their fees, index
// for index. Implemented by *mempool.Pool.
type MempoolSelector interface {
	SelectWithFees(limit int) ([]*tx.Transaction, []uint64)
}

type mempoolPicker struct {
	selector MempoolSelector
}

// NewTransactionPicker returns a TransactionPicker over a mempool.
func NewTransactionPicker(selector MempoolSelector) TransactionPicker {
	return &mempoolPicker{selector: selector}
}

// PickTransactions walks the mempool from the highest fee rate down,
// skipping transactions below MinFeeRate and any that no longer fit.
func (p *mempoolPicker) PickTransactions(params PickTransactionsParameters) PickTransactionsResult {
	if p.selector == nil {
		return PickTransactionsResult{Error: ErrNoMempool}
	}
	maxWeight := params.MaxWeight
	if maxWeight == 0 {
		maxWeight = block.MaxBlockWeight
	}
	if maxWeight > block.MaxBlockWeight {
		return PickTransactionsResult{
			Error: fmt.Errorf("max weight %d above block limit %d", maxWeight, block.MaxBlockWeight),
		}
	}

	var result PickTransactionsResult
	var used uint64
	txs, fees := p.selector.SelectWithFees(block.MaxBlockTxs - 1)
	for i, t := range txs {
		weight := t.Weight()
		if used+weight > maxWeight {
			continue
		}
		fee := fees[i]
		if mempool.BelowFeeRate(fee, weight, params.MinFeeRate) {
			continue
		}
		used += weight
		result.Transactions = append(result.Transactions, t)
		result.Fees = append(result.Fees, fee)
	}
	return result
}
