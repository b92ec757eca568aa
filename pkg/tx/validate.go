package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output value is zero")
	ErrMissingPubKey  = errors.New("input missing public key")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrUnknownType    = errors.New("unknown transaction type")
)

// Validate checks the transaction on its own. Whether its inputs exist is
// left to the UTXO set.
func (tx *Transaction) Validate() error {
	if _, known := txTypeNames[tx.Type]; !known {
		return fmt.Errorf("%w: %d", ErrUnknownType, tx.Type)
	}
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}

	seen := make(map[types.Outpoint]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		var err error
		switch _, dup := seen[in.PrevOut]; {
		case dup:
			err = ErrDuplicateInput
		case len(in.PubKey) == 0:
			err = ErrMissingPubKey
		case len(in.Signature) == 0:
			err = ErrMissingSig
		}
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		seen[in.PrevOut] = struct{}{}
	}

	// Only burn outputs may carry zero value.
	for i, out := range tx.Outputs {
		if out.Value == 0 && out.Script.Type != types.ScriptTypeBurn {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
	}
	if _, err := tx.TotalOutputValue(); err != nil {
		return err
	}
	return nil
}

// VerifySignatures checks every input's signature over the transaction
// ID against that input's public key.
func (tx *Transaction) VerifySignatures() error {
	id := tx.Hash()
	for i, in := range tx.Inputs {
		if !crypto.VerifySignature(id, in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
