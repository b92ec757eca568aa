package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	btcchain "github.com/btcsuite/btcd/blockchain"
)

// =============================================================================
// Chain Parameters (consensus-critical)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants.
// 1 coin = 10^12 base units. All on-chain values are in base units.
const (
	Decimals = 12
	Coin     = 1_000_000_000_000
)

// ErrInvalidParameters is returned by Parameters.Validate.
var ErrInvalidParameters = errors.New("invalid chain parameters")

// Parameters holds the consensus constants of a network.
type Parameters struct {
	Network NetworkType `json:"network"`

	// StakeMaturity is the minimum depth, counted from the block that
	// created the output to the parent of the proposed block inclusive,
	// before an output may be used as stake.
	StakeMaturity uint64 `json:"stake_maturity"`

	// GenesisBits is the compact difficulty of the genesis block.
	GenesisBits uint32 `json:"genesis_bits"`

	// PowLimitBits is the easiest allowed compact difficulty target.
	PowLimitBits uint32 `json:"pow_limit_bits"`

	// MaxFutureBlockTime is how many seconds a block timestamp may be
	// ahead of the node's adjusted time.
	MaxFutureBlockTime uint64 `json:"max_future_block_time"`

	// StakeTimestampInterval is the granularity of block timestamps in
	// seconds. It bounds how many kernel hashes a proposer can try per
	// unit of time.
	StakeTimestampInterval uint64 `json:"stake_timestamp_interval"`

	// EpochLength is the number of blocks in a finalization epoch.
	EpochLength uint32 `json:"epoch_length"`

	// CoinbaseMaturity is the number of blocks a coinbase output must
	// wait before it can be spent.
	CoinbaseMaturity uint64 `json:"coinbase_maturity"`
}

// MainNet returns the mainnet chain parameters.
func MainNet() *Parameters {
	return &Parameters{
		Network:                Mainnet,
		StakeMaturity:          100,
		GenesisBits:            0x1d00ffff,
		PowLimitBits:           0x1d00ffff,
		MaxFutureBlockTime:     2 * 60 * 60,
		StakeTimestampInterval: 4,
		EpochLength:            50,
		CoinbaseMaturity:       100,
	}
}

// TestNet returns the testnet chain parameters.
func TestNet() *Parameters {
	p := MainNet()
	p.Network = Testnet
	p.StakeMaturity = 50
	p.GenesisBits = 0x1e0fffff
	p.PowLimitBits = 0x1e0fffff
	return p
}

// RegTest returns the regression-test chain parameters. Every stake
// passes the kernel check at the genesis difficulty.
func RegTest() *Parameters {
	return &Parameters{
		Network:                Regtest,
		StakeMaturity:          2,
		GenesisBits:            0x207fffff,
		PowLimitBits:           0x207fffff,
		MaxFutureBlockTime:     2 * 60 * 60,
		StakeTimestampInterval: 1,
		EpochLength:            5,
		CoinbaseMaturity:       1,
	}
}

// ParametersFor returns the built-in parameters of a network.
func ParametersFor(network NetworkType) (*Parameters, error) {
	switch network {
	case Mainnet:
		return MainNet(), nil
	case Testnet:
		return TestNet(), nil
	case Regtest:
		return RegTest(), nil
	default:
		return nil, fmt.Errorf("%w: unknown network %q", ErrInvalidParameters, network)
	}
}

// LoadParameters reads chain parameters from a JSON file. Fields missing
// from the file keep the values of the built-in parameters for the
// network named in the file (regtest if none is named).
func LoadParameters(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}

	var head struct {
		Network NetworkType `json:"network"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if head.Network == "" {
		head.Network = Regtest
	}

	p, err := ParametersFor(head.Network)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parameters for internal consistency.
func (p *Parameters) Validate() error {
	if p.StakeMaturity == 0 {
		return fmt.Errorf("%w: stake_maturity must be positive", ErrInvalidParameters)
	}
	if p.StakeTimestampInterval == 0 {
		return fmt.Errorf("%w: stake_timestamp_interval must be positive", ErrInvalidParameters)
	}
	if p.EpochLength == 0 {
		return fmt.Errorf("%w: epoch_length must be positive", ErrInvalidParameters)
	}
	if p.MaxFutureBlockTime < p.StakeTimestampInterval {
		return fmt.Errorf("%w: max_future_block_time below stake_timestamp_interval", ErrInvalidParameters)
	}

	limit := btcchain.CompactToBig(p.PowLimitBits)
	if limit.Sign() <= 0 {
		return fmt.Errorf("%w: pow_limit_bits %#08x is not a positive target", ErrInvalidParameters, p.PowLimitBits)
	}
	genesis := btcchain.CompactToBig(p.GenesisBits)
	if genesis.Sign() <= 0 {
		return fmt.Errorf("%w: genesis_bits %#08x is not a positive target", ErrInvalidParameters, p.GenesisBits)
	}
	if genesis.Cmp(limit) > 0 {
		return fmt.Errorf("%w: genesis_bits easier than pow_limit_bits", ErrInvalidParameters)
	}
	return nil
}

// EpochOf returns the finalization epoch containing height. Height 0 is
// the genesis block and belongs to epoch 0; epoch n ≥ 1 covers heights
// (n-1)*EpochLength+1 through n*EpochLength.
func (p *Parameters) EpochOf(height uint64) uint32 {
	if height == 0 {
		return 0
	}
	return uint32((height-1)/uint64(p.EpochLength)) + 1
}
