package types

import (
	"cmp"
	"encoding/binary"
	"fmt"
)

// OutpointSize is the length of a serialized outpoint: txid(32) | index(4).
const OutpointSize = HashSize + 4

// Outpoint references a specific output in a transaction.
// Outpoints are comparable and are used directly as map keys, e.g. for the
// registry of pieces of stake claimed by in-flight proposals.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Compare gives outpoints a total order: by txid bytes, then by index.
func (o Outpoint) Compare(other Outpoint) int {
	if c := o.TxID.Compare(other.TxID); c != 0 {
		return c
	}
	return cmp.Compare(o.Index, other.Index)
}

// Bytes returns the canonical serialization: txid(32) | index(4, big-endian).
// Big-endian keeps byte order consistent with Compare.
func (o Outpoint) Bytes() []byte {
	buf := make([]byte, OutpointSize)
	copy(buf, o.TxID[:])
	binary.BigEndian.PutUint32(buf[HashSize:], o.Index)
	return buf
}

// OutpointFromBytes decodes the Bytes encoding. b must be exactly
// OutpointSize long.
func OutpointFromBytes(b []byte) (Outpoint, error) {
	if len(b) != OutpointSize {
		return Outpoint{}, fmt.Errorf("outpoint must be %d bytes, got %d", OutpointSize, len(b))
	}
	var o Outpoint
	copy(o.TxID[:], b)
	o.Index = binary.BigEndian.Uint32(b[HashSize:])
	return o, nil
}
