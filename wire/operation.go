// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/utils/wrappers"

	"github.com/photonlabs/hub/hashing"
)

const (
	// AddressMaxLen accommodates non-EVM public keys.
	AddressMaxLen = 128
	ParamsMaxLen  = 4096

	// fixed-width head of the packed encoding: protocolId, meta, srcChainId,
	// srcBlockNumber, srcOpTxId (2 words), nonce, destChainId
	packedHeadLen = 8 * common.HashLength
)

var (
	ErrAddrTooBig   = errors.New("protocol address exceeds 128 bytes")
	ErrParamsTooBig = errors.New("params exceed 4096 bytes")
)

// OperationData is a cross-chain message carrying a protocol-targeted call.
type OperationData struct {
	ProtocolID     common.Hash
	Meta           Meta
	SrcChainID     uint256.Int
	SrcBlockNumber uint256.Int
	SrcOpTxID      [2]common.Hash
	Nonce          uint256.Int
	DestChainID    uint256.Int
	ProtocolAddr   []byte
	Selector       Selector
	Params         []byte
	Reserved       []byte
}

func (o *OperationData) Verify() error {
	switch {
	case len(o.ProtocolAddr) > AddressMaxLen:
		return ErrAddrTooBig
	case len(o.Params) > ParamsMaxLen:
		return ErrParamsTooBig
	}
	return o.Selector.Verify()
}

// Pack returns the canonical big-endian tight packing, the preimage of the
// operation hash and the payload proposed to the destination gov.
func (o *OperationData) Pack() ([]byte, error) {
	if err := o.Verify(); err != nil {
		return nil, err
	}
	srcChain := o.SrcChainID.Bytes32()
	srcBlock := o.SrcBlockNumber.Bytes32()
	nonce := o.Nonce.Bytes32()
	destChain := o.DestChainID.Bytes32()
	meta := o.Meta.Bytes32()

	p := wrappers.Packer{MaxSize: packedHeadLen + AddressMaxLen + 2 + SelectorMaxLen + ParamsMaxLen + len(o.Reserved)}
	p.PackFixedBytes(o.ProtocolID[:])
	p.PackFixedBytes(meta[:])
	p.PackFixedBytes(srcChain[:])
	p.PackFixedBytes(srcBlock[:])
	p.PackFixedBytes(o.SrcOpTxID[0][:])
	p.PackFixedBytes(o.SrcOpTxID[1][:])
	p.PackFixedBytes(nonce[:])
	p.PackFixedBytes(destChain[:])
	p.PackFixedBytes(o.ProtocolAddr)
	o.Selector.pack(&p)
	p.PackFixedBytes(o.Params)
	p.PackFixedBytes(o.Reserved)
	return p.Bytes, p.Err
}

// Hash returns keccak(packed) and the personal-sign digest over it. The
// latter is the operation's primary key, so signers can produce proofs
// through a standard personal-sign path.
func (o *OperationData) Hash() (msgHash, opHash common.Hash, err error) {
	packed, err := o.Pack()
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	return hashing.Keccak256(packed), hashing.EthSignedDigest(packed), nil
}
