package types

import (
	"bytes"
	"encoding/hex"
	"strings"
)

const AddressSize = 20

// Address is the 160-bit hash of a public key. Validators are known by the
// address of their signing key.
type Address [AddressSize]byte

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// Bytes returns a copy of a.
func (a Address) Bytes() []byte { return bytes.Clone(a[:]) }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts 40 hex characters with an optional 0x prefix;
// empty text is the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// HexToAddress parses 40 hex characters. A leading "0x" is accepted.
func HexToAddress(s string) (Address, error) {
	var a Address
	if err := decodeFixed(a[:], strings.TrimPrefix(s, "0x"), "address"); err != nil {
		return Address{}, err
	}
	return a, nil
}
