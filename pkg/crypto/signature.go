package crypto

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

const (
	// PublicKeySize is the length of a compressed secp256k1 public key.
	PublicKeySize = 33
	// PrivateKeySize is the length of a secp256k1 secret scalar.
	PrivateKeySize = 32
	// SignatureSize is the length of a BIP-340 style Schnorr signature.
	SignatureSize = schnorr.SignatureSize
)

var ErrInvalidPublicKey = errors.New("invalid public key")

// Verifier checks signatures over 32-byte hashes.
type Verifier interface {
	Verify(hash types.Hash, signature, publicKey []byte) bool
}

// SchnorrVerifier is the Verifier used by consensus code.
type SchnorrVerifier struct{}

func (SchnorrVerifier) Verify(hash types.Hash, signature, publicKey []byte) bool {
	return VerifySignature(hash, signature, publicKey)
}

// PrivateKey is a secp256k1 key that signs with Schnorr.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// PrivateKeyFromBytes wraps a 32-byte secret scalar.
func PrivateKeyFromBytes(secret []byte) (*PrivateKey, error) {
	if len(secret) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(secret))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(secret)}, nil
}

// Sign returns a deterministic Schnorr signature over hash.
func (pk *PrivateKey) Sign(hash types.Hash) ([]byte, error) {
	sig, err := schnorr.Sign(pk.key, hash[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the compressed public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns a copy of the secret scalar. Callers should wipe it.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero wipes the secret scalar. The key is unusable afterwards.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// ParsePublicKey accepts a compressed or uncompressed key and returns the
// compressed form.
func ParsePublicKey(b []byte) ([]byte, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub.SerializeCompressed(), nil
}

// VerifySignature reports whether signature is publicKey's Schnorr
// signature over hash. Malformed inputs verify as false.
func VerifySignature(hash types.Hash, signature, publicKey []byte) bool {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	return err == nil && sig.Verify(hash[:], pub)
}
