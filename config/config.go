// Package config holds the two kinds of settings a node runs with: chain
// Parameters, which every node on a network must agree on, and the
// per-node Config read from flags and the .conf file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType names a network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// Config is the per-node runtime configuration. Fields carry the .conf key
// they are read from in their conf tag.
type Config struct {
	Network    NetworkType `conf:"network"`
	DataDir    string      `conf:"datadir"`
	ParamsFile string      `conf:"params.file"`

	Storage StorageConfig
	Staking StakingConfig
	Log     LogConfig
}

type StorageConfig struct {
	// InMemory keeps chain state out of the data directory.
	InMemory bool `conf:"storage.inmemory"`
}

type StakingConfig struct {
	Enabled bool `conf:"staking.enabled"`
	// Validator is the hex address of the keystore key that proposes and
	// votes.
	Validator string `conf:"staking.validator"`
}

type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir is ~/.klingnet-stake on Unix, and the per-user
// application data directory on macOS and Windows.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-stake"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetStake")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "KlingnetStake")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetStake")
	}
	return filepath.Join(home, ".klingnet-stake")
}

// ChainDataDir is the per-network subdirectory of DataDir.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

func (c *Config) ChainDBDir() string {
	return filepath.Join(c.ChainDataDir(), "chainstate")
}

func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// ConfigFile is shared by all networks under DataDir.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-stake.conf")
}
