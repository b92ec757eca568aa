package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

const (
	keyFileVersion = 1
	keyFileExt     = ".key"
)

// ErrKeyExists is returned when importing a key whose file already exists.
var ErrKeyExists = errors.New("key already exists")

// keyFile is the on-disk JSON format of one sealed validator key.
type keyFile struct {
	Version   int           `json:"version"`
	Address   types.Address `json:"address"`
	PublicKey []byte        `json:"public_key"`
	CreatedAt time.Time     `json:"created_at"`
	Sealed    []byte        `json:"sealed"`
}

// FileKeyStore keeps password-sealed keys in a directory, one file per
// address. Keys must be unlocked before they can sign.
type FileKeyStore struct {
	dir      string
	params   KDFParams
	unlocked *MemoryKeyStore
}

// NewFileKeyStore opens dir, creating it if needed.
func NewFileKeyStore(dir string, params KDFParams) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &FileKeyStore{dir: dir, params: params, unlocked: NewMemoryKeyStore()}, nil
}

func (ks *FileKeyStore) path(addr types.Address) string {
	return filepath.Join(ks.dir, addr.String()+keyFileExt)
}

// Import seals key under password and writes it to disk.
func (ks *FileKeyStore) Import(key *crypto.PrivateKey, password []byte) (types.Address, error) {
	addr := key.Address()
	path := ks.path(addr)
	if _, err := os.Stat(path); err == nil {
		return addr, fmt.Errorf("%w: %s", ErrKeyExists, addr)
	}

	secret := key.Serialize()
	defer wipe(secret)
	sealed, err := seal(secret, password, ks.params)
	if err != nil {
		return addr, fmt.Errorf("seal key: %w", err)
	}

	data, err := json.MarshalIndent(keyFile{
		Version:   keyFileVersion,
		Address:   addr,
		PublicKey: key.PublicKey(),
		CreatedAt: time.Now().UTC(),
		Sealed:    sealed,
	}, "", "  ")
	if err != nil {
		return addr, fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return addr, fmt.Errorf("write key file: %w", err)
	}
	klog.Keystore.Info().Stringer("address", addr).Msg("Key imported")
	return addr, nil
}

func (ks *FileKeyStore) read(addr types.Address) (*keyFile, error) {
	data, err := os.ReadFile(ks.path(addr))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}
	if kf.Address != addr {
		return nil, fmt.Errorf("key file for %s holds address %s", addr, kf.Address)
	}
	return &kf, nil
}

// Unlock decrypts the key for addr and keeps it in memory until Lock.
func (ks *FileKeyStore) Unlock(addr types.Address, password []byte) error {
	kf, err := ks.read(addr)
	if err != nil {
		return err
	}
	secret, err := open(kf.Sealed, password)
	if err != nil {
		klog.Keystore.Warn().Stringer("address", addr).Msg("Unlock failed")
		return fmt.Errorf("unlock %s: %w", addr, err)
	}
	defer wipe(secret)
	key, err := crypto.PrivateKeyFromBytes(secret)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	if key.Address() != addr {
		key.Zero()
		return fmt.Errorf("unlock %s: decrypted key has address %s", addr, key.Address())
	}
	ks.unlocked.Add(key)
	klog.Keystore.Info().Stringer("address", addr).Msg("Key unlocked")
	return nil
}

// Lock zeroes and forgets the unlocked key for addr.
func (ks *FileKeyStore) Lock(addr types.Address) {
	if ks.unlocked.Remove(addr) {
		klog.Keystore.Info().Stringer("address", addr).Msg("Key locked")
	}
}

// IsUnlocked reports whether addr can sign.
func (ks *FileKeyStore) IsUnlocked(addr types.Address) bool {
	return ks.unlocked.Has(addr)
}

// List returns the addresses of all key files.
func (ks *FileKeyStore) List() ([]types.Address, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var addrs []types.Address
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != keyFileExt {
			continue
		}
		addr, err := types.HexToAddress(strings.TrimSuffix(name, keyFileExt))
		if err != nil {
			klog.Keystore.Debug().Str("file", name).Msg("Skipping foreign file")
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// PublicKey returns the stored public key for addr; the key need not be
// unlocked.
func (ks *FileKeyStore) PublicKey(addr types.Address) ([]byte, error) {
	kf, err := ks.read(addr)
	if err != nil {
		return nil, err
	}
	return kf.PublicKey, nil
}

// Sign signs hash with the unlocked key for addr. A locked or missing key
// yields ErrKeyNotFound.
func (ks *FileKeyStore) Sign(addr types.Address, hash types.Hash) ([]byte, error) {
	return ks.unlocked.Sign(addr, hash)
}
