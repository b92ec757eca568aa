// Package types holds the fixed-size values shared across the stake
// validation and finalization packages.
package types

import (
	"bytes"
	"encoding/hex"
)

const HashSize = 32

// Hash is a 256-bit digest. Compared against a difficulty target it reads
// as a big-endian unsigned integer.
type Hash [HashSize]byte

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of h.
func (h Hash) Bytes() []byte { return bytes.Clone(h[:]) }

// Compare orders hashes bytewise, returning -1, 0 or +1.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText gives the hex form used in JSON and config files.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText accepts 64 hex characters; empty text is the zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixed(h[:], s, "hash"); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// MustHexToHash is HexToHash for constants and tests. It panics on bad
// input.
func MustHexToHash(s string) Hash {
	h, err := HexToHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
