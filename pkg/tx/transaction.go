// Package tx defines transactions, their canonical encoding and
// stateless validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// TxType distinguishes ordinary transfers from the proposer's coinbase.
type TxType uint8

const (
	TypeRegular  TxType = 0x00
	TypeCoinbase TxType = 0x01
)

var txTypeNames = map[TxType]string{
	TypeRegular:  "regular",
	TypeCoinbase: "coinbase",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Transaction moves value between outputs.
//
// Every block opens with a coinbase. Its first input spends the proposer's
// piece of stake, and that input's PubKey is the key the block header is
// signed with.
type Transaction struct {
	Version  uint32   `json:"version"`
	Type     TxType   `json:"type"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Input spends a previous output. Signature and PubKey form its witness.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// hexField is a byte slice carried in JSON as a hex string, or null when
// nil.
type hexField []byte

func (h hexField) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	return json.Marshal(hex.EncodeToString(h))
}

func (h *hexField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = b
	return nil
}

type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature hexField       `json:"signature"`
	PubKey    hexField       `json:"pubkey"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{PrevOut: in.PrevOut, Signature: in.Signature, PubKey: in.PubKey})
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*in = Input{PrevOut: j.PrevOut, Signature: j.Signature, PubKey: j.PubKey}
	return nil
}

// Output creates a new unspent output.
type Output struct {
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

func (tx *Transaction) IsCoinbase() bool {
	return tx.Type == TypeCoinbase
}

// Hash is the transaction ID: the hash of SigningBytes, so it does not
// cover witnesses.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// WitnessHash also covers every input's signature and public key. A
// coinbase has the zero witness hash since the block signature commits to
// the proposer's key.
func (tx *Transaction) WitnessHash() types.Hash {
	if tx.IsCoinbase() {
		return types.Hash{}
	}
	buf := tx.SigningBytes()
	for _, in := range tx.Inputs {
		buf = appendVarBytes(buf, in.Signature)
		buf = appendVarBytes(buf, in.PubKey)
	}
	return crypto.Hash(buf)
}

// SigningBytes is the canonical encoding that signatures cover. All
// integers are little-endian:
//
//	version(4) type(1)
//	n_in(4)  { txid(32) index(4) }
//	n_out(4) { value(8) script_type(1) len(4) script_data }
//	locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	size := 21 + types.OutpointSize*len(tx.Inputs)
	for _, out := range tx.Outputs {
		size += 13 + len(out.Script.Data)
	}
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = append(buf, byte(tx.Type))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, byte(out.Script.Type))
		buf = appendVarBytes(buf, out.Script.Data)
	}
	return binary.LittleEndian.AppendUint64(buf, tx.LockTime)
}

// appendVarBytes appends a 4-byte little-endian length then b.
func appendVarBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// Weight counts against the block weight limit. It is the length of the
// signing bytes.
func (tx *Transaction) Weight() uint64 {
	return uint64(len(tx.SigningBytes()))
}

// TotalOutputValue sums the outputs, failing with ErrOutputOverflow.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if out.Value > math.MaxUint64-total {
			return 0, ErrOutputOverflow
		}
		total += out.Value
	}
	return total, nil
}
