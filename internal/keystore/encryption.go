package keystore

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrWrongPassword is returned when a sealed key cannot be opened.
var ErrWrongPassword = errors.New("wrong password or corrupted key file")

const (
	saltSize = 32
	// Sealed layout: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
	kdfHeaderSize = saltSize + 4 + 4 + 1
	sealedMinSize = kdfHeaderSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

// KDFParams are the Argon2id cost parameters stored with each sealed key.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the parameters used for new key files.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// seal encrypts secret under password with Argon2id and XChaCha20-Poly1305.
func seal(secret, password []byte, params KDFParams) ([]byte, error) {
	out := make([]byte, kdfHeaderSize+chacha20poly1305.NonceSizeX, sealedMinSize+len(secret))
	salt := out[:saltSize]
	nonce := out[kdfHeaderSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	binary.LittleEndian.PutUint32(out[saltSize:], params.Memory)
	binary.LittleEndian.PutUint32(out[saltSize+4:], params.Iterations)
	out[saltSize+8] = params.Parallelism

	key := params.derive(password, salt)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	// The KDF header is authenticated as associated data.
	return aead.Seal(out, nonce, secret, out[:kdfHeaderSize]), nil
}

// open reverses seal.
func open(sealed, password []byte) ([]byte, error) {
	if len(sealed) < sealedMinSize {
		return nil, fmt.Errorf("sealed key too short: %d bytes, need at least %d", len(sealed), sealedMinSize)
	}
	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(sealed[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[saltSize+4:]),
		Parallelism: sealed[saltSize+8],
	}
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: bad kdf parameters", ErrWrongPassword)
	}
	nonce := sealed[kdfHeaderSize : kdfHeaderSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[kdfHeaderSize+chacha20poly1305.NonceSizeX:]

	key := params.derive(password, sealed[:saltSize])
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	secret, err := aead.Open(nil, nonce, ciphertext, sealed[:kdfHeaderSize])
	if err != nil {
		return nil, ErrWrongPassword
	}
	return secret, nil
}
