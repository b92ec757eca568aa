package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Header contains block metadata.
//
// Bits is the compact difficulty target the proposer's stake kernel is
// checked against. Signature is the proposer's Schnorr signature over
// Hash(), made with the key in the coinbase staking input.
type Header struct {
	Version           uint32     `json:"version"`
	PrevHash          types.Hash `json:"prev_hash"`
	MerkleRoot        types.Hash `json:"merkle_root"`
	WitnessMerkleRoot types.Hash `json:"witness_merkle_root"`
	Timestamp         uint64     `json:"timestamp"`
	Height            uint64     `json:"height"`
	Bits              uint32     `json:"bits"`
	Signature         []byte     `json:"signature,omitempty"`
}

// MarshalJSON writes Signature as hex.
func (h *Header) MarshalJSON() ([]byte, error) {
	type plain Header
	return json.Marshal(struct {
		*plain
		Signature string `json:"signature,omitempty"`
	}{(*plain)(h), hex.EncodeToString(h.Signature)})
}

func (h *Header) UnmarshalJSON(data []byte) error {
	type plain Header
	*h = Header{}
	aux := struct {
		*plain
		Signature string `json:"signature"`
	}{plain: (*plain)(h)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Signature == "" {
		return nil
	}
	sig, err := hex.DecodeString(aux.Signature)
	if err != nil {
		return err
	}
	h.Signature = sig
	return nil
}

// Hash identifies the block. It leaves out Signature so the proposer can
// sign it.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// HeaderSigningSize is the length of SigningBytes.
const HeaderSigningSize = 4 + 3*types.HashSize + 8 + 8 + 4

// SigningBytes is the little-endian encoding
// version(4) prev_hash(32) merkle_root(32) witness_merkle_root(32)
// timestamp(8) height(8) bits(4).
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, HeaderSigningSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	for _, root := range [...]types.Hash{h.PrevHash, h.MerkleRoot, h.WitnessMerkleRoot} {
		buf = append(buf, root[:]...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	return binary.LittleEndian.AppendUint32(buf, h.Bits)
}
