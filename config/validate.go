package config

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.DataDir == "" && !cfg.Storage.InMemory {
		return fmt.Errorf("datadir is required unless storage.inmemory is set")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	if cfg.Staking.Enabled {
		if cfg.Staking.Validator == "" {
			return fmt.Errorf("staking.enabled requires staking.validator")
		}
		if _, err := types.HexToAddress(cfg.Staking.Validator); err != nil {
			return fmt.Errorf("staking.validator: %w", err)
		}
	}
	return nil
}
