package utxo

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Commitment returns the snapshot hash of the unspent set: the merkle root
// of the leaf hashes of all unspent outputs, ordered by outpoint. An empty
// set commits to the zero hash.
func Commitment(store *Store) (types.Hash, error) {
	var unspent []*UTXO
	if err := store.ForEach(func(u *UTXO) error {
		unspent = append(unspent, u)
		return nil
	}); err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}
	if len(unspent) == 0 {
		return types.Hash{}, nil
	}

	slices.SortFunc(unspent, func(a, b *UTXO) int {
		return a.Outpoint.Compare(b.Outpoint)
	})
	leaves := make([]types.Hash, len(unspent))
	for i, u := range unspent {
		leaves[i] = u.leaf()
	}
	return block.ComputeMerkleRoot(leaves), nil
}

// leaf hashes outpoint(36) | value(8 BE) | height(8 BE) | coinbase(1) |
// script type(1) | script data length(2 BE) | script data.
func (u *UTXO) leaf() types.Hash {
	buf := make([]byte, 0, types.OutpointSize+20+len(u.Script.Data))
	buf = append(buf, u.Outpoint.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, u.Value)
	buf = binary.BigEndian.AppendUint64(buf, u.Height)
	var flag byte
	if u.Coinbase {
		flag = 1
	}
	buf = append(buf, flag, byte(u.Script.Type))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(u.Script.Data)))
	buf = append(buf, u.Script.Data...)
	return crypto.Hash(buf)
}
