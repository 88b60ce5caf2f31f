// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stream

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/photonlabs/hub/hashing"
)

// calcMerkleRoot builds a complete binary tree over [leaves]: leaves are
// sorted ascending as 256-bit big-endian integers and placed at the tail of
// the node array; every inner node hashes its children as keccak(min || max).
// The result is byte-identical for identical leaf sets.
func calcMerkleRoot(leaves []common.Hash) common.Hash {
	n := len(leaves)
	switch n {
	case 0:
		return common.Hash{}
	case 1:
		return leaves[0]
	}

	sorted := make([]*uint256.Int, n)
	for i, leaf := range leaves {
		sorted[i] = new(uint256.Int).SetBytes(leaf[:])
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})

	nodes := make([]common.Hash, 2*n-1)
	for i, v := range sorted {
		nodes[n-1+i] = common.Hash(v.Bytes32())
	}
	for i := n - 2; i >= 0; i-- {
		nodes[i] = hashPair(nodes[2*i+1], nodes[2*i+2])
	}
	return nodes[0]
}

// hashPair hashes the numerically smaller child first.
func hashPair(a, b common.Hash) common.Hash {
	ua := new(uint256.Int).SetBytes(a[:])
	ub := new(uint256.Int).SetBytes(b[:])
	if ua.Cmp(ub) > 0 {
		a, b = b, a
	}
	return hashing.Keccak256(a[:], b[:])
}
