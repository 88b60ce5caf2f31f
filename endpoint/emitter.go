// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package endpoint turns governance changes into outbound operations. Every
// admin action becomes one self-addressed gov-protocol proposal toward the
// destination chain's endpoint, so governance rides the same consensus
// pipeline as user traffic.
package endpoint

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/photonlabs/hub/wire"
)

var ErrNoGovAddress = errors.New("no gov address known for chain")

// Transport is the messaging layer the emitter hands finished proposals to.
// Implementations must not call back into the hub.
type Transport interface {
	Propose(op *wire.OperationData) error
}

// GovAddressSource resolves a chain's endpoint gov contract address.
type GovAddressSource interface {
	GovAddress(chainID uint256.Int) ([]byte, bool)
}

// Heights provides the source block number stamped on outbound operations.
type Heights interface {
	Height() uint64
}

type Emitter struct {
	log       log.Logger
	transport Transport
	gov       GovAddressSource
	heights   Heights

	localChainID uint256.Int
	nonce        uint64
}

func NewEmitter(logger log.Logger, transport Transport, heights Heights, localChainID uint256.Int) *Emitter {
	return &Emitter{
		log:          logger,
		transport:    transport,
		heights:      heights,
		localChainID: localChainID,
	}
}

// SetCollaborators wires the gov address source once.
func (e *Emitter) SetCollaborators(gov GovAddressSource) {
	if e.gov == nil {
		e.gov = gov
	}
}

// Emit wraps [msg] as a gov-protocol operation addressed to [chainID]'s
// endpoint and hands it to the transport.
func (e *Emitter) Emit(chainID uint256.Int, msg wire.GovMessage) error {
	destGov, ok := e.gov.GovAddress(chainID)
	if !ok {
		return ErrNoGovAddress
	}
	e.nonce++
	op := &wire.OperationData{
		ProtocolID:     wire.GovProtocolID,
		Meta:           wire.Meta{}.WithVersion(1).WithInOrder(true),
		SrcChainID:     e.localChainID,
		SrcBlockNumber: *uint256.NewInt(e.heights.Height()),
		SrcOpTxID: [2]common.Hash{
			common.BigToHash(uint256.NewInt(e.nonce).ToBig()),
		},
		Nonce:        *uint256.NewInt(e.nonce),
		DestChainID:  chainID,
		ProtocolAddr: destGov,
		Selector:     msg.Selector(),
		Params:       msg.Params(),
	}
	e.log.Debug("governance proposal emitted",
		log.Stringer("destChainID", &chainID),
		log.Uint64("nonce", e.nonce),
	)
	return e.transport.Propose(op)
}
