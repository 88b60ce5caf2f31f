// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/hub/wire"
)

type transportRecorder []*wire.OperationData

func (tr *transportRecorder) Propose(op *wire.OperationData) error {
	*tr = append(*tr, op)
	return nil
}

type govStub map[uint256.Int][]byte

func (g govStub) GovAddress(chainID uint256.Int) ([]byte, bool) {
	addr, ok := g[chainID]
	return addr, ok
}

type heightsStub uint64

func (h heightsStub) Height() uint64 { return uint64(h) }

func TestEmit(t *testing.T) {
	require := require.New(t)

	local := *uint256.NewInt(1)
	dest := *uint256.NewInt(137)
	govAddr := []byte{0xdd}

	transport := &transportRecorder{}
	e := NewEmitter(log.NewNoOpLogger(), transport, heightsStub(7), local)
	e.SetCollaborators(govStub{dest: govAddr})

	msg := wire.SetConsensusTargetRate{
		ProtocolID:          common.HexToHash("0x70"),
		ConsensusTargetRate: 8000,
	}
	require.NoError(e.Emit(dest, msg))
	require.NoError(e.Emit(dest, msg))

	require.Len(*transport, 2)
	op := (*transport)[0]
	require.Equal(wire.GovProtocolID, op.ProtocolID)
	require.Equal(local, op.SrcChainID)
	require.Equal(dest, op.DestChainID)
	require.Equal(govAddr, op.ProtocolAddr)
	require.Equal(*uint256.NewInt(7), op.SrcBlockNumber)
	require.Equal(wire.TagSetConsensusTargetRate[:], op.Selector.Data[:4])
	require.Equal(msg.Params(), op.Params)
	require.True(op.Meta.InOrder())

	// nonces are strictly increasing
	require.Equal(*uint256.NewInt(1), op.Nonce)
	require.Equal(*uint256.NewInt(2), (*transport)[1].Nonce)

	require.ErrorIs(e.Emit(*uint256.NewInt(999), msg), ErrNoGovAddress)
}
