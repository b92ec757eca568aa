package block

import (
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// ComputeMerkleRoot returns the merkle root of leaves. An empty list has
// the zero root; a level with an odd count pairs its last node with itself.
func ComputeMerkleRoot(leaves []types.Hash) types.Hash {
	root, _ := ComputeMerkleRootMutated(leaves)
	return root
}

// ComputeMerkleRootMutated also reports whether some level paired two equal
// nodes, not counting odd-level padding. Such a list has the same root as a
// shorter one.
func ComputeMerkleRootMutated(leaves []types.Hash) (types.Hash, bool) {
	switch len(leaves) {
	case 0:
		return types.Hash{}, false
	case 1:
		return leaves[0], false
	}

	level := append(make([]types.Hash, 0, len(leaves)+1), leaves...)
	mutated := false
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		} else if level[len(level)-2] == level[len(level)-1] {
			mutated = true
		}
		// Reduce in place: node i of the next level overwrites slot i.
		for i := 0; i < len(level); i += 2 {
			if i+2 < len(level) && level[i] == level[i+1] {
				mutated = true
			}
			level[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = level[:len(level)/2]
	}
	return level[0], mutated
}
