// klingnet-stake manages validator keys, signs and verifies finalization
// votes, and inspects the stake view of a local chain state.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	"github.com/Klingon-tech/klingnet-stake/internal/chainview"
	"github.com/Klingon-tech/klingnet-stake/internal/esperanza"
	"github.com/Klingon-tech/klingnet-stake/internal/keystore"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/staking"
	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
	"golang.org/x/term"
)

// env is the resolved node configuration shared by all commands.
type env struct {
	cfg      *config.Config
	behavior *blockchain.Behavior
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	network := string(config.Mainnet)
	dataDir := ""
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	e, err := loadEnv(config.NetworkType(network), dataDir)
	if err != nil {
		fatal("%v", err)
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "keys":
		cmdKeys(e, cmdArgs)
	case "vote":
		cmdVote(e, cmdArgs)
	case "kernel":
		cmdKernel(e, cmdArgs)
	case "chain":
		cmdChain(e, cmdArgs)
	case "rejections":
		cmdRejections()
	case "config":
		cmdConfig(e, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingnet-stake [global flags] <command> [flags]

Global flags:
  --network <net>     mainnet (default), testnet or regtest
  --datadir <path>    Data directory (default: ~/.klingnet-stake)

Commands:
  keys new [--account N --index N]      Create a mnemonic and import its validator key
  keys recover [--account N --index N]  Import a validator key from a mnemonic on stdin
  keys list                             List key files

  vote sign --target <hash> --source N --epoch N [--validator <addr>]
                                        Sign a finalization vote
  vote verify --vote <hex> --sig <hex> [--pubkey <hex>]
                                        Verify a signed vote

  kernel --depth N --kernel <hash> [--bits <hex>]
                                        Evaluate the stake kernel rule

  chain init [--validator <addr>] [--stakes N] [--amount N]
                                        Create a chain state with staked genesis outputs
  chain stakes [--validator <addr>]     List stakeable outputs and their depth

  rejections                            List block rejection reasons
  config init                           Write a starter config file
`)
}

func loadEnv(network config.NetworkType, dataDir string) (*env, error) {
	cfg := config.Default(network)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	values, err := config.LoadFile(cfg.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyFileConfig(cfg, values); err != nil {
		return nil, err
	}
	// Flags win over the file.
	cfg.Network = network
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	var params *config.Parameters
	if cfg.ParamsFile != "" {
		params, err = config.LoadParameters(cfg.ParamsFile)
	} else {
		params, err = config.ParametersFor(cfg.Network)
	}
	if err != nil {
		return nil, err
	}
	behavior, err := blockchain.New(params)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, behavior: behavior}, nil
}

func (e *env) keystore() *keystore.FileKeyStore {
	ks, err := keystore.NewFileKeyStore(e.cfg.KeystoreDir(), keystore.DefaultKDFParams())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return ks
}

// validator resolves an address flag, falling back to staking.validator.
func (e *env) validator(flagValue string) types.Address {
	s := flagValue
	if s == "" {
		s = e.cfg.Staking.Validator
	}
	if s == "" {
		fatal("no validator address: pass --validator or set staking.validator")
	}
	addr, err := types.HexToAddress(s)
	if err != nil {
		fatal("validator address: %v", err)
	}
	return addr
}

func (e *env) openChain() (*chainview.View, storage.DB) {
	var (
		db  *storage.BadgerDB
		err error
	)
	if e.cfg.Storage.InMemory {
		db, err = storage.NewBadgerInMemory()
	} else {
		if err := os.MkdirAll(e.cfg.ChainDBDir(), 0700); err != nil {
			fatal("create chain dir: %v", err)
		}
		db, err = storage.NewBadger(e.cfg.ChainDBDir())
	}
	if err != nil {
		fatal("open chain state: %v", err)
	}
	view, err := chainview.New(db, e.behavior)
	if err != nil {
		db.Close()
		fatal("load chain: %v", err)
	}
	return view, db
}

// ── config ──────────────────────────────────────────────────────────────

func cmdConfig(e *env, args []string) {
	if len(args) != 1 || args[0] != "init" {
		fatal("Usage: klingnet-stake config init")
	}
	if err := os.MkdirAll(e.cfg.DataDir, 0700); err != nil {
		fatal("create datadir: %v", err)
	}
	path := e.cfg.ConfigFile()
	if err := config.WriteDefaultConfig(path, e.cfg.Network); err != nil {
		fatal("write config: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

// ── keys ────────────────────────────────────────────────────────────────

func cmdKeys(e *env, args []string) {
	if len(args) == 0 {
		fatal("Usage: klingnet-stake keys <new|recover|list>")
	}
	switch args[0] {
	case "new":
		cmdKeysImport(e, args[1:], true)
	case "recover":
		cmdKeysImport(e, args[1:], false)
	case "list":
		cmdKeysList(e)
	default:
		fatal("unknown keys command: %s", args[0])
	}
}

func cmdKeysImport(e *env, args []string, generate bool) {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	account := fs.Uint("account", 0, "BIP-44 account")
	index := fs.Uint("index", 0, "Validator key index")
	passphrase := fs.String("passphrase", "", "Optional BIP-39 passphrase")
	fs.Parse(args)

	var mnemonic string
	if generate {
		m, err := keystore.GenerateMnemonic()
		if err != nil {
			fatal("%v", err)
		}
		mnemonic = m
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	} else {
		fmt.Fprint(os.Stderr, "Enter mnemonic: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fatal("read mnemonic: %v", err)
		}
		mnemonic = strings.Join(strings.Fields(line), " ")
	}

	seed, err := keystore.SeedFromMnemonic(mnemonic, *passphrase)
	if err != nil {
		fatal("%v", err)
	}
	key, err := keystore.DeriveValidatorKey(seed, uint32(*account), uint32(*index))
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("derive key: %v", err)
	}
	defer key.Zero()

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	addr, err := e.keystore().Import(key, password)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Validator: %s\n", addr)
	fmt.Printf("Pubkey:    %s\n", hex.EncodeToString(key.PublicKey()))
}

func cmdKeysList(e *env) {
	ks := e.keystore()
	addrs, err := ks.List()
	if err != nil {
		fatal("%v", err)
	}
	if len(addrs) == 0 {
		fmt.Println("No keys.")
		return
	}
	for _, addr := range addrs {
		pub, err := ks.PublicKey(addr)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", addr, err)
			continue
		}
		fmt.Printf("%s  %s\n", addr, hex.EncodeToString(pub))
	}
}

// ── vote ────────────────────────────────────────────────────────────────

func cmdVote(e *env, args []string) {
	if len(args) == 0 {
		fatal("Usage: klingnet-stake vote <sign|verify>")
	}
	switch args[0] {
	case "sign":
		cmdVoteSign(e, args[1:])
	case "verify":
		cmdVoteVerify(e, args[1:])
	default:
		fatal("unknown vote command: %s", args[0])
	}
}

func cmdVoteSign(e *env, args []string) {
	fs := flag.NewFlagSet("vote sign", flag.ExitOnError)
	validator := fs.String("validator", "", "Validator address (default: staking.validator)")
	target := fs.String("target", "", "Target checkpoint hash")
	source := fs.Uint("source", 0, "Source epoch")
	epoch := fs.Uint("epoch", 0, "Target epoch")
	fs.Parse(args)

	targetHash, err := types.HexToHash(*target)
	if err != nil {
		fatal("target: %v", err)
	}
	vote := esperanza.Vote{
		ValidatorAddress: e.validator(*validator),
		TargetHash:       targetHash,
		SourceEpoch:      uint32(*source),
		TargetEpoch:      uint32(*epoch),
	}

	ks := e.keystore()
	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if err := ks.Unlock(vote.ValidatorAddress, password); err != nil {
		fatal("%v", err)
	}
	defer ks.Lock(vote.ValidatorAddress)

	sig, err := esperanza.CreateSignature(ks, vote)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Vote:      %s\n", hex.EncodeToString(vote.Bytes()))
	fmt.Printf("Hash:      %s\n", vote.GetHash())
	fmt.Printf("Signature: %s\n", hex.EncodeToString(sig))
}

func cmdVoteVerify(e *env, args []string) {
	fs := flag.NewFlagSet("vote verify", flag.ExitOnError)
	voteHex := fs.String("vote", "", "Serialized vote (hex)")
	sigHex := fs.String("sig", "", "Signature (hex)")
	pubHex := fs.String("pubkey", "", "Validator public key (default: from keystore)")
	fs.Parse(args)

	raw, err := hex.DecodeString(*voteHex)
	if err != nil {
		fatal("vote: %v", err)
	}
	vote, err := esperanza.VoteFromBytes(raw)
	if err != nil {
		fatal("%v", err)
	}
	sig, err := hex.DecodeString(*sigHex)
	if err != nil {
		fatal("sig: %v", err)
	}

	var pub []byte
	if *pubHex != "" {
		pub, err = hex.DecodeString(*pubHex)
	} else {
		pub, err = e.keystore().PublicKey(vote.ValidatorAddress)
	}
	if err != nil {
		fatal("public key: %v", err)
	}

	fmt.Println(vote)
	if !esperanza.CheckSignature(pub, vote, sig) {
		fmt.Println("Signature: INVALID")
		os.Exit(2)
	}
	fmt.Println("Signature: valid")
}

// ── kernel ──────────────────────────────────────────────────────────────

func cmdKernel(e *env, args []string) {
	fs := flag.NewFlagSet("kernel", flag.ExitOnError)
	depth := fs.Uint64("depth", 0, "Stake depth in blocks")
	kernelHex := fs.String("kernel", "", "Kernel hash")
	bitsHex := fs.String("bits", "", "Compact difficulty (default: genesis bits)")
	fs.Parse(args)

	kernel, err := types.HexToHash(*kernelHex)
	if err != nil {
		fatal("kernel: %v", err)
	}
	bits := e.behavior.GenesisBits()
	if *bitsHex != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(*bitsHex, "0x"), 16, 32)
		if err != nil {
			fatal("bits: %v", err)
		}
		bits = uint32(v)
	}

	sv := staking.New(e.behavior, nil)
	fmt.Printf("Target: %064x\n", blockchain.DecodeTarget(bits))
	if !sv.CheckKernel(*depth, kernel, bits) {
		fmt.Println("Kernel: FAIL")
		os.Exit(2)
	}
	fmt.Println("Kernel: pass")
}

// ── chain ───────────────────────────────────────────────────────────────

func cmdChain(e *env, args []string) {
	if len(args) == 0 {
		fatal("Usage: klingnet-stake chain <init|stakes>")
	}
	switch args[0] {
	case "init":
		cmdChainInit(e, args[1:])
	case "stakes":
		cmdChainStakes(e, args[1:])
	default:
		fatal("unknown chain command: %s", args[0])
	}
}

func cmdChainInit(e *env, args []string) {
	fs := flag.NewFlagSet("chain init", flag.ExitOnError)
	validator := fs.String("validator", "", "Validator address (default: staking.validator)")
	count := fs.Int("stakes", 1, "Number of stake outputs")
	amount := fs.Uint64("amount", 1000, "Coins per stake output")
	fs.Parse(args)

	if *count <= 0 {
		fatal("--stakes must be positive")
	}
	pub, err := e.keystore().PublicKey(e.validator(*validator))
	if err != nil {
		fatal("%v", err)
	}
	alloc := make([]tx.Output, *count)
	for i := range alloc {
		alloc[i] = tx.Output{
			Value:  *amount * config.Coin,
			Script: types.Script{Type: types.ScriptTypeStake, Data: pub},
		}
	}

	view, db := e.openChain()
	defer db.Close()
	genesis := e.behavior.NewGenesisBlock(uint64(time.Now().Unix()), alloc)
	if err := view.Init(genesis); err != nil {
		fatal("init chain: %v", err)
	}
	fmt.Printf("Genesis: %s\n", genesis.Hash())
	fmt.Printf("Stakes:  %d x %d\n", *count, *amount)
}

func cmdChainStakes(e *env, args []string) {
	fs := flag.NewFlagSet("chain stakes", flag.ExitOnError)
	validator := fs.String("validator", "", "Validator address (default: staking.validator)")
	fs.Parse(args)

	pub, err := e.keystore().PublicKey(e.validator(*validator))
	if err != nil {
		fatal("%v", err)
	}
	view, db := e.openChain()
	defer db.Close()
	if view.Tip() == nil {
		fatal("chain state is empty; run chain init")
	}

	stakes, err := view.StakesFor(pub)
	if err != nil {
		fatal("%v", err)
	}
	height := view.Height()
	maturity := e.behavior.StakeMaturity()
	fmt.Printf("Height %d, stake maturity %d\n", height, maturity)
	for _, u := range stakes {
		// Depth as seen by a proposal for the next block.
		depth := height - u.Height + 1
		state := "mature"
		if depth < maturity {
			state = "immature"
		}
		fmt.Printf("  %s  %d  %s  depth=%d %s\n", u.Outpoint, u.Value, u.Script.Type, depth, state)
	}
}

// ── rejections ──────────────────────────────────────────────────────────

func cmdRejections() {
	for _, e := range staking.BlockValidationErrors() {
		fmt.Printf("%2d  %-48s %s\n", uint8(e), e, staking.GetRejectionMessageFor(e))
	}
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
