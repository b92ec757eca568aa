package types

import (
	"encoding/hex"
	"fmt"
)

// decodeFixed decodes hex s into dst. The decoded length must equal
// len(dst).
func decodeFixed(dst []byte, s, what string) error {
	if hex.DecodedLen(len(s)) != len(dst) || len(s)%2 != 0 {
		return fmt.Errorf("%s must be %d bytes, got %d hex chars", what, len(dst), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("invalid %s hex: %w", what, err)
	}
	return nil
}
