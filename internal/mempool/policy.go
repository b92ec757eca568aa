package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

// Policy limits. These are relay rules, not consensus rules.
const (
	DefaultMaxTxWeight = 100_000
	MaxTxInputs        = 1_000
	MaxTxOutputs       = 1_000
	MaxScriptData      = 256
)

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxWeight uint64
}

// DefaultPolicy returns a policy with the default limits.
func DefaultPolicy() *Policy {
	return &Policy{MaxTxWeight: DefaultMaxTxWeight}
}

// Check validates a transaction against policy rules. Policy can vary
// per node.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if w := transaction.Weight(); p.MaxTxWeight > 0 && w > p.MaxTxWeight {
		return fmt.Errorf("transaction too large: weight %d, max %d", w, p.MaxTxWeight)
	}
	if len(transaction.Inputs) > MaxTxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", len(transaction.Inputs), MaxTxInputs)
	}
	if len(transaction.Outputs) > MaxTxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(transaction.Outputs), MaxTxOutputs)
	}
	for i, out := range transaction.Outputs {
		if len(out.Script.Data) > MaxScriptData {
			return fmt.Errorf("output %d script data too large: %d bytes, max %d", i, len(out.Script.Data), MaxScriptData)
		}
	}
	return nil
}
