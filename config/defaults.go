package config

// DefaultMainnet is the starting Config for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Log:     LogConfig{Level: "info"},
	}
}

// Default returns the starting Config for network, mainnet when empty.
// Regtest keeps chain state in memory and logs at debug. An unknown
// network is kept as given so Validate rejects it.
func Default(network NetworkType) *Config {
	cfg := DefaultMainnet()
	if network != "" {
		cfg.Network = network
	}
	if network == Regtest {
		cfg.Storage.InMemory = true
		cfg.Log.Level = "debug"
	}
	return cfg
}
