package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

func mustKey(t *testing.T) *PrivateKey {
	t.Helper()
	k, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func TestPrivateKey_Sizes(t *testing.T) {
	k := mustKey(t)
	if n := len(k.PublicKey()); n != PublicKeySize {
		t.Errorf("PublicKey() is %d bytes, want %d", n, PublicKeySize)
	}
	if n := len(k.Serialize()); n != PrivateKeySize {
		t.Errorf("Serialize() is %d bytes, want %d", n, PrivateKeySize)
	}
	for _, n := range []int{0, 31, 33, 64} {
		if _, err := PrivateKeyFromBytes(make([]byte, n)); err == nil {
			t.Errorf("PrivateKeyFromBytes accepted %d bytes", n)
		}
	}
}

func TestPrivateKeyFromBytes_RoundTrip(t *testing.T) {
	k := mustKey(t)
	again, err := PrivateKeyFromBytes(k.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if again.Address() != k.Address() {
		t.Error("restored key has a different address")
	}
}

func TestVerifySignature(t *testing.T) {
	signer, other := mustKey(t), mustKey(t)
	hash := Hash([]byte("vote payload"))
	sig, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature is %d bytes, want %d", len(sig), SignatureSize)
	}
	again, _ := signer.Sign(hash)
	if !bytes.Equal(sig, again) {
		t.Error("signing is not deterministic")
	}

	flipped := bytes.Clone(sig)
	flipped[10] ^= 0x80

	tests := []struct {
		name string
		hash types.Hash
		sig  []byte
		pub  []byte
		want bool
	}{
		{"valid", hash, sig, signer.PublicKey(), true},
		{"other hash", Hash([]byte("other")), sig, signer.PublicKey(), false},
		{"other key", hash, sig, other.PublicKey(), false},
		{"flipped bit", hash, flipped, signer.PublicKey(), false},
		{"truncated", hash, sig[:SignatureSize-1], signer.PublicKey(), false},
		{"no signature", hash, nil, signer.PublicKey(), false},
		{"no key", hash, sig, nil, false},
		{"garbage key", hash, sig, []byte("bad"), false},
	}
	v := SchnorrVerifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.hash, tt.sig, tt.pub); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
			if got := v.Verify(tt.hash, tt.sig, tt.pub); got != tt.want {
				t.Errorf("SchnorrVerifier.Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePublicKey(t *testing.T) {
	k := mustKey(t)
	got, err := ParsePublicKey(k.PublicKey())
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !bytes.Equal(got, k.PublicKey()) {
		t.Error("compressed key not returned unchanged")
	}

	uncompressed := k.key.PubKey().SerializeUncompressed()
	got, err = ParsePublicKey(uncompressed)
	if err != nil || !bytes.Equal(got, k.PublicKey()) {
		t.Errorf("ParsePublicKey(uncompressed) = %x, %v", got, err)
	}

	if _, err := ParsePublicKey([]byte{0x02, 0x01}); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("ParsePublicKey(garbage) error = %v, want ErrInvalidPublicKey", err)
	}
}

func TestPrivateKey_Zero(t *testing.T) {
	k := mustKey(t)
	k.Zero()
	if !bytes.Equal(k.Serialize(), make([]byte, PrivateKeySize)) {
		t.Error("secret not wiped")
	}
}
