// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/utils/wrappers"
)

// Stable EVM 4-byte tags of the endpoint governance entry points.
var (
	TagAddAllowedProtocol           = [4]byte{0x45, 0xa0, 0x04, 0xb9}
	TagAddAllowedProtocolAddress    = [4]byte{0xd2, 0x96, 0xa0, 0xff}
	TagRemoveAllowedProtocolAddress = [4]byte{0xb0, 0xa4, 0xca, 0x98}
	TagAddAllowedProposerAddress    = [4]byte{0xce, 0x09, 0x40, 0xa5}
	TagRemoveAllowedProposerAddress = [4]byte{0xb8, 0xe5, 0xf3, 0xf4}
	TagAddExecutor                  = [4]byte{0xe0, 0xaa, 0xfb, 0x68}
	TagRemoveExecutor               = [4]byte{0x04, 0xfa, 0x38, 0x4a}
	TagAddTransmitters              = [4]byte{0x6c, 0x5f, 0x56, 0x66}
	TagRemoveTransmitters           = [4]byte{0x52, 0x06, 0xda, 0x70}
	TagUpdateTransmitters           = [4]byte{0x65, 0x4b, 0x46, 0xe1}
	TagSetConsensusTargetRate       = [4]byte{0x97, 0x0b, 0x61, 0x09}
)

// GovMessage is an outbound governance change addressed to a per-chain
// endpoint. Each admin action maps to exactly one message.
type GovMessage interface {
	// Selector identifies the endpoint entry point the message targets.
	Selector() Selector
	// Params is the encoded payload carried in the operation's params field.
	Params() []byte
}

type AddAllowedProtocol struct {
	ProtocolID          common.Hash
	ConsensusTargetRate uint64
	Transmitters        []common.Address
}

func (AddAllowedProtocol) Selector() Selector {
	return EVMSelector(TagAddAllowedProtocol)
}

func (m AddAllowedProtocol) Params() []byte {
	p := packer(m.ProtocolID)
	p.PackLong(m.ConsensusTargetRate)
	packAddrs(p, m.Transmitters)
	return p.Bytes
}

// ActorRole distinguishes the two whitelists AddOrRemoveActorAddress serves.
type ActorRole uint8

const (
	ActorProtocolAddress ActorRole = iota
	ActorProposerAddress
)

// AddOrRemoveActorAddress covers the protocol-address and proposer-address
// whitelists, both add and remove.
type AddOrRemoveActorAddress struct {
	ProtocolID common.Hash
	Actor      []byte
	Role       ActorRole
	Remove     bool
}

func (m AddOrRemoveActorAddress) Selector() Selector {
	switch {
	case m.Role == ActorProposerAddress && m.Remove:
		return EVMSelector(TagRemoveAllowedProposerAddress)
	case m.Role == ActorProposerAddress:
		return EVMSelector(TagAddAllowedProposerAddress)
	case m.Remove:
		return EVMSelector(TagRemoveAllowedProtocolAddress)
	default:
		return EVMSelector(TagAddAllowedProtocolAddress)
	}
}

func (m AddOrRemoveActorAddress) Params() []byte {
	p := packer(m.ProtocolID)
	p.PackBytes(m.Actor)
	return p.Bytes
}

type AddOrRemoveExecutor struct {
	ProtocolID common.Hash
	Executor   []byte
	Remove     bool
}

func (m AddOrRemoveExecutor) Selector() Selector {
	if m.Remove {
		return EVMSelector(TagRemoveExecutor)
	}
	return EVMSelector(TagAddExecutor)
}

func (m AddOrRemoveExecutor) Params() []byte {
	p := packer(m.ProtocolID)
	p.PackBytes(m.Executor)
	return p.Bytes
}

type AddOrRemoveTransmitters struct {
	ProtocolID   common.Hash
	Transmitters []common.Address
	Remove       bool
}

func (m AddOrRemoveTransmitters) Selector() Selector {
	if m.Remove {
		return EVMSelector(TagRemoveTransmitters)
	}
	return EVMSelector(TagAddTransmitters)
}

func (m AddOrRemoveTransmitters) Params() []byte {
	p := packer(m.ProtocolID)
	packAddrs(p, m.Transmitters)
	return p.Bytes
}

type UpdateTransmitters struct {
	ProtocolID common.Hash
	ToAdd      []common.Address
	ToRemove   []common.Address
}

func (UpdateTransmitters) Selector() Selector {
	return EVMSelector(TagUpdateTransmitters)
}

func (m UpdateTransmitters) Params() []byte {
	p := packer(m.ProtocolID)
	packAddrs(p, m.ToAdd)
	packAddrs(p, m.ToRemove)
	return p.Bytes
}

type SetConsensusTargetRate struct {
	ProtocolID          common.Hash
	ConsensusTargetRate uint64
}

func (SetConsensusTargetRate) Selector() Selector {
	return EVMSelector(TagSetConsensusTargetRate)
}

func (m SetConsensusTargetRate) Params() []byte {
	p := packer(m.ProtocolID)
	p.PackLong(m.ConsensusTargetRate)
	return p.Bytes
}

type SetDAOProtocolOwner struct {
	ProtocolID common.Hash
	Owner      common.Address
}

// SetDAOProtocolOwner rides the protocol-address selector. Its params are the
// protocol ID followed by the 20-byte owner; no tag sets them apart from an
// address addition.
func (SetDAOProtocolOwner) Selector() Selector {
	return EVMSelector(TagAddAllowedProtocolAddress)
}

func (m SetDAOProtocolOwner) Params() []byte {
	p := packer(m.ProtocolID)
	p.PackFixedBytes(m.Owner[:])
	return p.Bytes
}

func packer(protocolID common.Hash) *wrappers.Packer {
	p := &wrappers.Packer{MaxSize: ParamsMaxLen}
	p.PackFixedBytes(protocolID[:])
	return p
}

func packAddrs(p *wrappers.Packer, addrs []common.Address) {
	p.PackInt(uint32(len(addrs)))
	for _, a := range addrs {
		p.PackFixedBytes(a[:])
	}
}

// GovProtocolID is the reserved protocol carrying the hub's own governance
// traffic to per-chain endpoints.
var GovProtocolID = common.BytesToHash([]byte("photon-gov"))
