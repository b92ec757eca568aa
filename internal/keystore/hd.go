package keystore

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic is returned for a phrase that fails BIP-39 checks.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

const (
	// MnemonicEntropyBits gives 24-word phrases.
	MnemonicEntropyBits = 256

	// SeedSize is the BIP-39 seed length in bytes.
	SeedSize = 64

	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinType     = bip32.FirstHardenedChild + 8888

	// ValidatorBranch is the BIP-44 change level reserved for staking keys,
	// kept apart from the external (0) and internal (1) wallet branches.
	ValidatorBranch = 2
)

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic reports whether mnemonic has valid words and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 64-byte BIP-39 seed.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// DeriveValidatorKey derives the staking key at
// m/44'/8888'/account'/2/index from seed.
func DeriveValidatorKey(seed []byte, account, index uint32) (*crypto.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	path := []uint32{purposeBIP44, coinType, bip32.FirstHardenedChild + account, ValidatorBranch, index}
	for _, step := range path {
		key, err = key.NewChildKey(step)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", step, err)
		}
	}
	raw := key.Key
	// bip32 pads private keys to 33 bytes.
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// FromMnemonic builds a MemoryKeyStore holding the first count validator
// keys of account.
func FromMnemonic(mnemonic, passphrase string, account uint32, count int) (*MemoryKeyStore, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)

	ks := NewMemoryKeyStore()
	for i := 0; i < count; i++ {
		key, err := DeriveValidatorKey(seed, account, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("validator key %d: %w", i, err)
		}
		ks.Add(key)
	}
	return ks, nil
}
