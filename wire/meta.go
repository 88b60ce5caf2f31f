// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the canonical operation encoding: the packed
// hashing preimage, the operation meta word, the function selector codec and
// the governance message payloads.
package wire

import "github.com/holiman/uint256"

// Meta is the 256-bit operation meta word. The low byte carries the version,
// the next byte the in-order flag; the remaining bytes are reserved and must
// be propagated verbatim.
type Meta struct {
	word uint256.Int
}

func MetaFromWord(word *uint256.Int) Meta {
	return Meta{word: *word}
}

func MetaFromBytes(b [32]byte) Meta {
	var m Meta
	m.word.SetBytes32(b[:])
	return m
}

// Bytes32 returns the big-endian word; the version byte is at index 31.
func (m Meta) Bytes32() [32]byte {
	return m.word.Bytes32()
}

func (m Meta) Word() *uint256.Int {
	w := m.word
	return &w
}

func (m Meta) Version() byte {
	b := m.word.Bytes32()
	return b[31]
}

func (m Meta) InOrder() bool {
	b := m.word.Bytes32()
	return b[30] != 0
}

// WithVersion replaces the version byte, leaving every other byte untouched.
func (m Meta) WithVersion(v byte) Meta {
	b := m.word.Bytes32()
	b[31] = v
	return MetaFromBytes(b)
}

// WithInOrder replaces the in-order byte, leaving every other byte untouched.
func (m Meta) WithInOrder(inOrder bool) Meta {
	b := m.word.Bytes32()
	if inOrder {
		b[30] = 1
	} else {
		b[30] = 0
	}
	return MetaFromBytes(b)
}
