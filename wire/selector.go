// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"errors"

	"github.com/luxfi/utils/wrappers"
)

const SelectorMaxLen = 32

var (
	ErrSelectorTooBig  = errors.New("function selector exceeds 32 bytes")
	ErrSelectorInvalid = errors.New("malformed function selector")
)

type SelectorType byte

const (
	SelectorEVMABI SelectorType = iota
	SelectorSolanaAnchor
	SelectorSolanaNative
)

// Selector is a destination-runtime function tag. EVM selectors carry the
// 32-byte ABI-encoded form of the 4-byte tag; Solana-native selectors are
// empty.
type Selector struct {
	Type SelectorType
	Data []byte
}

// EVMSelector wraps a 4-byte EVM tag in its 32-byte ABI-encoded form.
func EVMSelector(tag [4]byte) Selector {
	data := make([]byte, 32)
	copy(data, tag[:])
	return Selector{Type: SelectorEVMABI, Data: data}
}

func (s Selector) Verify() error {
	if len(s.Data) > SelectorMaxLen {
		return ErrSelectorTooBig
	}
	return nil
}

func (s Selector) pack(p *wrappers.Packer) {
	p.PackByte(byte(s.Type))
	p.PackByte(byte(len(s.Data)))
	p.PackFixedBytes(s.Data)
}

// Encode returns the wire form: type byte, length byte, then the tag bytes.
func (s Selector) Encode() ([]byte, error) {
	if err := s.Verify(); err != nil {
		return nil, err
	}
	p := wrappers.Packer{MaxSize: 2 + SelectorMaxLen}
	s.pack(&p)
	return p.Bytes, p.Err
}

// ParseSelector decodes a selector and returns the remaining bytes.
func ParseSelector(b []byte) (Selector, []byte, error) {
	if len(b) < 2 {
		return Selector{}, nil, ErrSelectorInvalid
	}
	typ := SelectorType(b[0])
	if typ > SelectorSolanaNative {
		return Selector{}, nil, ErrSelectorInvalid
	}
	size := int(b[1])
	if size > SelectorMaxLen || len(b) < 2+size {
		return Selector{}, nil, ErrSelectorInvalid
	}
	data := make([]byte, size)
	copy(data, b[2:2+size])
	return Selector{Type: typ, Data: data}, b[2+size:], nil
}
