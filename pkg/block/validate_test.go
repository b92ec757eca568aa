package block

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

func signedTx(t *testing.T, b *tx.Builder) *tx.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return b.Build()
}

func testCoinbase(t *testing.T) *tx.Transaction {
	t.Helper()
	stake := types.Outpoint{TxID: types.Hash{0xee}, Index: 0}
	return signedTx(t, tx.NewCoinbaseBuilder(stake).
		AddOutput(5000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}))
}

func validBlock(t *testing.T) *Block {
	t.Helper()
	blk := NewBlock(&Header{
		Version:   CurrentVersion,
		Timestamp: 1_700_000_000,
		Height:    1,
		Bits:      0x207fffff,
	}, []*tx.Transaction{testCoinbase(t)})
	blk.Seal()
	return blk
}

func TestBlock_Validate_Valid(t *testing.T) {
	if err := validBlock(t).Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlock_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, b *Block)
		want   error
	}{
		{"nil header", func(t *testing.T, b *Block) { b.Header = nil }, ErrNilHeader},
		{"version zero", func(t *testing.T, b *Block) { b.Header.Version = 0 }, ErrBadVersion},
		{"version above max", func(t *testing.T, b *Block) { b.Header.Version = MaxVersion + 1 }, ErrBadVersion},
		{"zero timestamp", func(t *testing.T, b *Block) { b.Header.Timestamp = 0 }, ErrZeroTimestamp},
		{"no transactions", func(t *testing.T, b *Block) { b.Transactions = nil }, ErrNoTransactions},
		{"nil transaction", func(t *testing.T, b *Block) {
			b.Transactions = append(b.Transactions, nil)
		}, ErrNilTransaction},
		{"invalid transaction", func(t *testing.T, b *Block) {
			b.Transactions[0].Outputs = nil
		}, tx.ErrNoOutputs},
		{"too many txs", func(t *testing.T, b *Block) {
			b.Transactions = make([]*tx.Transaction, MaxBlockTxs+1)
		}, ErrTooManyTxs},
		{"duplicate input across txs", func(t *testing.T, b *Block) {
			spend := signedTx(t, tx.NewBuilder().
				AddInput(b.Transactions[0].Inputs[0].PrevOut).
				AddOutput(10, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}))
			b.Transactions = append(b.Transactions, spend)
		}, ErrDuplicateBlockInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blk := validBlock(t)
			tt.mutate(t, blk)
			if err := blk.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBlock_Validate_BlockTooLarge(t *testing.T) {
	blk := validBlock(t)
	big := signedTx(t, tx.NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}}).
		AddOutput(1, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, MaxBlockWeight)}))
	blk.Transactions = append(blk.Transactions, big)
	if err := blk.Validate(); !errors.Is(err, ErrBlockTooLarge) {
		t.Errorf("Validate() = %v, want ErrBlockTooLarge", err)
	}
}

func TestBlock_CoinbaseAndStakingInput(t *testing.T) {
	blk := validBlock(t)
	if blk.Coinbase() != blk.Transactions[0] {
		t.Fatal("Coinbase() should return the first transaction")
	}
	in, ok := blk.StakingInput()
	if !ok {
		t.Fatal("StakingInput() ok = false")
	}
	if want := (types.Outpoint{TxID: types.Hash{0xee}}); in.PrevOut != want {
		t.Errorf("StakingInput().PrevOut = %s, want %s", in.PrevOut, want)
	}

	blk.Transactions[0].Type = tx.TypeRegular
	if blk.Coinbase() != nil {
		t.Error("Coinbase() should be nil when first tx is not a coinbase")
	}
	if _, ok := blk.StakingInput(); ok {
		t.Error("StakingInput() ok = true without coinbase")
	}

	empty := NewBlock(&Header{}, nil)
	if empty.Coinbase() != nil {
		t.Error("Coinbase() of empty block should be nil")
	}
}

func TestBlock_Seal(t *testing.T) {
	blk := validBlock(t)
	if blk.Header.MerkleRoot != ComputeMerkleRoot(blk.TxHashes()) {
		t.Error("MerkleRoot not sealed")
	}
	if blk.Header.WitnessMerkleRoot != ComputeMerkleRoot(blk.WitnessHashes()) {
		t.Error("WitnessMerkleRoot not sealed")
	}
}

func TestHeader_Hash_Deterministic(t *testing.T) {
	h := &Header{Version: 1, PrevHash: types.Hash{0x01}, Timestamp: 1000, Height: 5, Bits: 0x1d00ffff}
	if h.Hash() != h.Hash() {
		t.Error("header hash should be deterministic")
	}
	changed := *h
	changed.Bits = 0x1d00fffe
	if changed.Hash() == h.Hash() {
		t.Error("header hash should commit to bits")
	}
}

func TestHeader_Hash_IgnoresSignature(t *testing.T) {
	h := &Header{Version: 1, Timestamp: 1000, Height: 5}
	before := h.Hash()
	h.Signature = []byte{0x01, 0x02, 0x03}
	if h.Hash() != before {
		t.Error("header hash should not include signature")
	}
}

func TestBlock_Hash(t *testing.T) {
	blk := validBlock(t)
	if blk.Hash() != blk.Header.Hash() {
		t.Error("Block.Hash() should equal Header.Hash()")
	}
	blk.Header = nil
	if !blk.Hash().IsZero() {
		t.Error("Block.Hash() with nil header should be zero")
	}
}

func TestHeader_JSON(t *testing.T) {
	h := &Header{Version: 1, PrevHash: types.Hash{0xaa}, Height: 9, Bits: 0x207fffff, Signature: []byte{0xbe, 0xef}}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"signature":"beef"`) {
		t.Errorf("signature not hex in %s", data)
	}

	got := &Header{Timestamp: 77}
	if err := json.Unmarshal(data, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Hash() != h.Hash() || string(got.Signature) != string(h.Signature) {
		t.Errorf("round trip = %+v, want %+v", got, h)
	}

	unsigned, _ := json.Marshal(&Header{Version: 1})
	if strings.Contains(string(unsigned), "signature") {
		t.Errorf("empty signature emitted: %s", unsigned)
	}
	if len((&Header{}).SigningBytes()) != HeaderSigningSize {
		t.Error("SigningBytes length differs from HeaderSigningSize")
	}
}
