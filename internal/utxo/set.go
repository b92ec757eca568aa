// Package utxo manages the UTXO set.
package utxo

import (
	"errors"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Lookup errors.
var (
	ErrNotFound = errors.New("utxo not found")
	ErrSpent    = errors.New("utxo already spent")
)

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Value    uint64         `json:"value"`
	Script   types.Script   `json:"script"`
	Height   uint64         `json:"height"`
	Coinbase bool           `json:"coinbase"`
}

// Set is the interface for UTXO storage.
type Set interface {
	// Get returns ErrNotFound for outpoints never created and ErrSpent for
	// outpoints that were created and later spent.
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Spend(outpoint types.Outpoint, height uint64) (*UTXO, error)
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
}
