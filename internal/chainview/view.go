// Package chainview maintains the active chain: the block index along the
// best chain, the UTXO set at its tip and the undo data needed to
// disconnect blocks.
package chainview

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-stake/internal/blockchain"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/internal/utxo"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Chain errors.
var (
	ErrNotInitialized     = errors.New("chain has no genesis block")
	ErrAlreadyInitialized = errors.New("chain already initialized")
	ErrNotExtendingTip    = errors.New("block does not extend the tip")
	ErrGenesisDisconnect  = errors.New("cannot disconnect the genesis block")
	ErrImmatureCoinbase   = errors.New("coinbase output spent before maturity")
	ErrMissingUndo        = errors.New("undo data missing")
)

// Key namespaces within the backing database.
var (
	nsIndex  = []byte("i/") // i/<hash> -> BlockIndex JSON
	nsHeight = []byte("h/") // h/<height(8)> -> hash
	nsUndo   = []byte("d/") // d/<hash> -> undo JSON
	nsUTXO   = []byte("c/") // UTXO store
	keyTip   = []byte("m/tip")
)

// undoRecord holds what is needed to reverse a connected block.
type undoRecord struct {
	Spent   []*utxo.UTXO     `json:"spent"`
	Created []types.Outpoint `json:"created"`
}

// View is the active chain over a storage.DB. It is safe for concurrent use.
type View struct {
	mu       sync.RWMutex
	behavior *blockchain.Behavior

	db      storage.DB
	index   *storage.PrefixDB
	heights *storage.PrefixDB
	undo    *storage.PrefixDB
	utxos   *utxo.Store

	tip    *blockchain.BlockIndex
	logger zerolog.Logger
}

// New opens a view over db. If db already holds a chain, its tip is loaded.
func New(db storage.DB, behavior *blockchain.Behavior) (*View, error) {
	v := &View{
		behavior: behavior,
		db:       db,
		index:    storage.NewPrefixDB(db, nsIndex),
		heights:  storage.NewPrefixDB(db, nsHeight),
		undo:     storage.NewPrefixDB(db, nsUndo),
		utxos:    utxo.NewStore(storage.NewPrefixDB(db, nsUTXO)),
		logger:   klog.Chain,
	}

	tipHash, err := db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tip: %w", err)
	}
	var h types.Hash
	copy(h[:], tipHash)
	tip, err := v.loadIndex(h)
	if err != nil {
		return nil, fmt.Errorf("load tip %s: %w", h, err)
	}
	v.tip = tip
	v.logger.Info().Uint64("height", tip.Height).Str("hash", tip.Hash.String()).Msg("Chain loaded")
	return v, nil
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}

func (v *View) loadIndex(hash types.Hash) (*blockchain.BlockIndex, error) {
	data, err := v.index.Get(hash[:])
	if err != nil {
		return nil, err
	}
	var bi blockchain.BlockIndex
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("decode block index: %w", err)
	}
	return &bi, nil
}

// Init connects the genesis block to an empty chain.
func (v *View) Init(genesis *block.Block) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tip != nil {
		return ErrAlreadyInitialized
	}
	if genesis == nil || genesis.Header == nil || genesis.Header.Height != 0 {
		return fmt.Errorf("%w: genesis must be a block at height 0", ErrNotExtendingTip)
	}
	return v.connect(genesis)
}

// Height returns the height of the tip, 0 for an empty chain.
func (v *View) Height() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.tip == nil {
		return 0
	}
	return v.tip.Height
}

// Tip returns the index entry of the tip, nil for an empty chain.
func (v *View) Tip() *blockchain.BlockIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tip
}

// AtHeight returns the active-chain block at height, nil if there is none.
func (v *View) AtHeight(height uint64) *blockchain.BlockIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.atHeight(height)
}

func (v *View) atHeight(height uint64) *blockchain.BlockIndex {
	if v.tip == nil || height > v.tip.Height {
		return nil
	}
	hash, err := v.heights.Get(heightKey(height))
	if err != nil {
		return nil
	}
	var h types.Hash
	copy(h[:], hash)
	bi, err := v.loadIndex(h)
	if err != nil {
		return nil
	}
	return bi
}

// Contains reports whether hash is a block on the active chain.
func (v *View) Contains(hash types.Hash) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	bi, err := v.loadIndex(hash)
	if err != nil {
		return false
	}
	at := v.atHeight(bi.Height)
	return at != nil && at.Hash == hash
}

// Lookup returns the index entry for hash, nil if unknown.
func (v *View) Lookup(hash types.Hash) *blockchain.BlockIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()
	bi, err := v.loadIndex(hash)
	if err != nil {
		return nil
	}
	return bi
}

// GetUTXO returns the unspent output at outpoint. The error wraps
// utxo.ErrNotFound or utxo.ErrSpent.
func (v *View) GetUTXO(outpoint types.Outpoint) (*utxo.UTXO, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.utxos.Get(outpoint)
}

// StakesFor returns the outputs a key can stake: stake-script outputs
// locked to pubKey and P2PKH outputs paying to its address.
func (v *View) StakesFor(pubKey []byte) ([]*utxo.UTXO, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stakes, err := v.utxos.GetStakes(pubKey)
	if err != nil {
		return nil, err
	}
	owned, err := v.utxos.GetByAddress(crypto.AddressFromPubKey(pubKey))
	if err != nil {
		return nil, err
	}
	return append(stakes, owned...), nil
}

// SnapshotHash returns the commitment to the UTXO set at the tip.
func (v *View) SnapshotHash() (types.Hash, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return utxo.Commitment(v.utxos)
}

// Connect appends blk to the tip, spending its inputs and adding its
// outputs to the UTXO set. Consensus validation is the caller's job;
// Connect only checks that blk is well-formed and extends the tip.
func (v *View) Connect(blk *block.Block) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tip == nil {
		return ErrNotInitialized
	}
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if blk.Header.PrevHash != v.tip.Hash || blk.Header.Height != v.tip.Height+1 {
		return fmt.Errorf("%w: block %d on %s, tip %d %s", ErrNotExtendingTip,
			blk.Header.Height, blk.Header.PrevHash, v.tip.Height, v.tip.Hash)
	}
	return v.connect(blk)
}

func (v *View) connect(blk *block.Block) error {
	height := blk.Header.Height
	maturity := v.behavior.Parameters().CoinbaseMaturity
	var rec undoRecord

	rollback := func() {
		if err := v.revert(&rec); err != nil {
			v.logger.Error().Err(err).Uint64("height", height).Msg("Rollback failed")
		}
	}

	for ti, t := range blk.Transactions {
		for ii, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				continue
			}
			prev, err := v.utxos.Get(in.PrevOut)
			if err != nil {
				rollback()
				return fmt.Errorf("tx %d input %d: %w", ti, ii, err)
			}
			if prev.Coinbase && !t.IsCoinbase() && height < prev.Height+maturity {
				rollback()
				return fmt.Errorf("tx %d input %d: %w: created at %d, spent at %d",
					ti, ii, ErrImmatureCoinbase, prev.Height, height)
			}
			spent, err := v.utxos.Spend(in.PrevOut, height)
			if err != nil {
				rollback()
				return fmt.Errorf("tx %d input %d: %w", ti, ii, err)
			}
			rec.Spent = append(rec.Spent, spent)
		}

		txid := t.Hash()
		for oi, out := range t.Outputs {
			op := types.Outpoint{TxID: txid, Index: uint32(oi)}
			u := &utxo.UTXO{
				Outpoint: op,
				Value:    out.Value,
				Script:   out.Script,
				Height:   height,
				Coinbase: t.IsCoinbase(),
			}
			if err := v.utxos.Put(u); err != nil {
				rollback()
				return fmt.Errorf("tx %d output %d: %w", ti, oi, err)
			}
			rec.Created = append(rec.Created, op)
		}
	}

	bi := blockchain.NewBlockIndex(blk.Header, v.tip)
	if err := v.writeIndex(bi, &rec); err != nil {
		rollback()
		return err
	}
	v.tip = bi

	v.logger.Debug().
		Uint64("height", bi.Height).
		Str("hash", bi.Hash.String()).
		Int("txs", len(blk.Transactions)).
		Msg("Block connected")
	return nil
}

// revert undoes the UTXO changes in rec. Spent outputs are restored
// before created ones are erased, so an output created and spent in the
// same block ends up gone rather than unspent.
func (v *View) revert(rec *undoRecord) error {
	for i := len(rec.Spent) - 1; i >= 0; i-- {
		if err := v.utxos.Put(rec.Spent[i]); err != nil {
			return fmt.Errorf("restore output %s: %w", rec.Spent[i].Outpoint, err)
		}
	}
	for i := len(rec.Created) - 1; i >= 0; i-- {
		if err := v.utxos.Delete(rec.Created[i]); err != nil {
			return fmt.Errorf("remove output %s: %w", rec.Created[i], err)
		}
	}
	return nil
}

func (v *View) writeIndex(bi *blockchain.BlockIndex, rec *undoRecord) error {
	indexData, err := json.Marshal(bi)
	if err != nil {
		return fmt.Errorf("encode block index: %w", err)
	}
	undoData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode undo: %w", err)
	}

	b := storage.NewBatch(v.db)
	ops := []struct {
		key, value []byte
	}{
		{append(append([]byte{}, nsIndex...), bi.Hash[:]...), indexData},
		{append(append([]byte{}, nsHeight...), heightKey(bi.Height)...), bi.Hash[:]},
		{append(append([]byte{}, nsUndo...), bi.Hash[:]...), undoData},
		{keyTip, bi.Hash[:]},
	}
	for _, op := range ops {
		if err := b.Put(op.key, op.value); err != nil {
			return fmt.Errorf("write block index: %w", err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit block index: %w", err)
	}
	return nil
}

// DisconnectTip removes the tip block, restoring the outputs it spent and
// removing the outputs it created. Returns the disconnected index entry.
func (v *View) DisconnectTip() (*blockchain.BlockIndex, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tip == nil {
		return nil, ErrNotInitialized
	}
	if v.tip.Height == 0 {
		return nil, ErrGenesisDisconnect
	}
	old := v.tip

	data, err := v.undo.Get(old.Hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingUndo, old.Hash, err)
	}
	var rec undoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode undo: %w", err)
	}
	parent, err := v.loadIndex(old.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("load parent %s: %w", old.PrevHash, err)
	}

	if err := v.revert(&rec); err != nil {
		return nil, err
	}

	b := storage.NewBatch(v.db)
	b.Delete(append(append([]byte{}, nsIndex...), old.Hash[:]...))
	b.Delete(append(append([]byte{}, nsHeight...), heightKey(old.Height)...))
	b.Delete(append(append([]byte{}, nsUndo...), old.Hash[:]...))
	b.Put(keyTip, parent.Hash[:])
	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("commit disconnect: %w", err)
	}
	v.tip = parent

	v.logger.Debug().
		Uint64("height", old.Height).
		Str("hash", old.Hash.String()).
		Msg("Block disconnected")
	return old, nil
}
