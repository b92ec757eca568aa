package block

import (
	"slices"
	"testing"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

func leaves(n int) []types.Hash {
	out := make([]types.Hash, n)
	for i := range out {
		out[i] = crypto.Hash([]byte{'t', 'x', byte(i)})
	}
	return out
}

func TestComputeMerkleRoot_Shapes(t *testing.T) {
	h := leaves(4)
	h01 := crypto.HashConcat(h[0], h[1])
	h22 := crypto.HashConcat(h[2], h[2])
	h23 := crypto.HashConcat(h[2], h[3])

	tests := []struct {
		name   string
		leaves []types.Hash
		want   types.Hash
	}{
		{"empty", nil, types.Hash{}},
		{"one", h[:1], h[0]},
		{"two", h[:2], h01},
		{"three pads last", h[:3], crypto.HashConcat(h01, h22)},
		{"four", h, crypto.HashConcat(h01, h23)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeMerkleRoot(tt.leaves); got != tt.want {
				t.Errorf("ComputeMerkleRoot() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeMerkleRoot_OrderAndInput(t *testing.T) {
	in := leaves(7)
	saved := slices.Clone(in)
	root := ComputeMerkleRoot(in)
	if !slices.Equal(in, saved) {
		t.Fatal("ComputeMerkleRoot modified its input")
	}
	in[0], in[1] = in[1], in[0]
	if ComputeMerkleRoot(in) == root {
		t.Error("swapping two leaves kept the root")
	}
}

func TestComputeMerkleRootMutated(t *testing.T) {
	h := leaves(3)
	tests := []struct {
		name    string
		leaves  []types.Hash
		mutated bool
	}{
		{"empty", nil, false},
		{"single", h[:1], false},
		{"distinct odd", h, false},
		{"pair of equals", []types.Hash{h[0], h[0]}, true},
		{"repeated tail", []types.Hash{h[0], h[1], h[2], h[2]}, true},
		{"equal inner pair", []types.Hash{h[1], h[1], h[0], h[2]}, true},
		{"equals not paired", []types.Hash{h[0], h[1], h[0]}, false},
		{"equals across pairs", []types.Hash{h[0], h[1], h[1], h[2]}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, mutated := ComputeMerkleRootMutated(tt.leaves)
			if mutated != tt.mutated {
				t.Errorf("mutated = %v, want %v", mutated, tt.mutated)
			}
			if root != ComputeMerkleRoot(tt.leaves) {
				t.Error("root differs from ComputeMerkleRoot")
			}
		})
	}
}

// A list with its last leaf repeated collides with the list without it.
func TestComputeMerkleRoot_RepeatedTailCollides(t *testing.T) {
	h := leaves(5)
	short := ComputeMerkleRoot(h)
	long, mutated := ComputeMerkleRootMutated(append(slices.Clone(h), h[4]))
	if short != long {
		t.Fatal("padded and repeated lists have different roots")
	}
	if !mutated {
		t.Error("repeated tail not reported as mutated")
	}
}
