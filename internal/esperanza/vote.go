// Package esperanza holds the finalization vote and its signature handling.
package esperanza

import (
	"encoding/binary"
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// VoteSize is the length of a serialized vote.
const VoteSize = types.AddressSize + types.HashSize + 4 + 4

// ErrInvalidVote is returned when decoding malformed vote bytes.
var ErrInvalidVote = errors.New("invalid vote encoding")

// KeyStore signs hashes with the key of a validator address.
type KeyStore interface {
	Sign(addr types.Address, hash types.Hash) ([]byte, error)
}

// Vote is a validator's finalization vote linking SourceEpoch to the
// checkpoint TargetHash at TargetEpoch. Votes are compared by value.
type Vote struct {
	ValidatorAddress types.Address
	TargetHash       types.Hash
	SourceEpoch      uint32
	TargetEpoch      uint32
}

// Bytes returns the canonical encoding:
// address(20) | target hash(32) | source epoch(4 LE) | target epoch(4 LE).
func (v Vote) Bytes() []byte {
	buf := make([]byte, VoteSize)
	n := copy(buf, v.ValidatorAddress[:])
	n += copy(buf[n:], v.TargetHash[:])
	binary.LittleEndian.PutUint32(buf[n:], v.SourceEpoch)
	binary.LittleEndian.PutUint32(buf[n+4:], v.TargetEpoch)
	return buf
}

// VoteFromBytes decodes a vote produced by Bytes.
func VoteFromBytes(b []byte) (Vote, error) {
	if len(b) != VoteSize {
		return Vote{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidVote, len(b), VoteSize)
	}
	var v Vote
	n := copy(v.ValidatorAddress[:], b)
	n += copy(v.TargetHash[:], b[n:])
	v.SourceEpoch = binary.LittleEndian.Uint32(b[n:])
	v.TargetEpoch = binary.LittleEndian.Uint32(b[n+4:])
	return v, nil
}

// GetHash returns the signing payload of the vote.
func (v Vote) GetHash() types.Hash {
	return crypto.Hash(v.Bytes())
}

func (v Vote) String() string {
	return fmt.Sprintf("Vote{validator=%s target=%s source=%d target_epoch=%d}",
		v.ValidatorAddress, v.TargetHash, v.SourceEpoch, v.TargetEpoch)
}

// CreateSignature signs v with the validator's key held by ks.
func CreateSignature(ks KeyStore, v Vote) ([]byte, error) {
	sig, err := ks.Sign(v.ValidatorAddress, v.GetHash())
	if err != nil {
		klog.Finalization.Warn().Err(err).Stringer("vote", v).Msg("Cannot sign vote")
		return nil, fmt.Errorf("sign vote: %w", err)
	}
	return sig, nil
}

// CheckSignature reports whether sig is a signature by pubKey over v.
func CheckSignature(pubKey []byte, v Vote, sig []byte) bool {
	return crypto.VerifySignature(v.GetHash(), sig, pubKey)
}
