// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/token"
	"github.com/photonlabs/hub/wire"
)

var (
	developer  = common.HexToAddress("0xde")
	owner      = common.HexToAddress("0x0e")
	protocolID = common.HexToHash("0x70")
	manual1    = common.HexToAddress("0x31")
	manual2    = common.HexToAddress("0x32")
)

type emittedMsg struct {
	chainID uint256.Int
	msg     wire.GovMessage
}

type emitterRecorder []emittedMsg

func (e *emitterRecorder) Emit(chainID uint256.Int, msg wire.GovMessage) error {
	*e = append(*e, emittedMsg{chainID: chainID, msg: msg})
	return nil
}

type feePotRecorder uint64

func (f *feePotRecorder) CreditSystemFee(amount uint64) {
	*f += feePotRecorder(amount)
}

type opsStub struct {
	transmitters map[common.Hash][]common.Address
	updates      []([]common.Address)
}

func (o *opsStub) CurrentTransmitters(protocolID common.Hash) []common.Address {
	return o.transmitters[protocolID]
}

func (o *opsStub) UpdateTransmitters(protocolID common.Hash, trs []common.Address) error {
	o.transmitters[protocolID] = trs
	o.updates = append(o.updates, trs)
	return nil
}

func defaultParams() Params {
	return Params{
		MsgBetAmount:        5,
		DataBetAmount:       7,
		MsgBetReward:        10,
		MsgBetFirstReward:   30,
		DataBetReward:       20,
		DataBetFirstReward:  40,
		ConsensusTargetRate: 6000,
		MinDelegateAmount:   100,
		MinPersonalAmount:   50,
		MaxTransmitters:     10,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *token.MemLedger, *emitterRecorder, *feePotRecorder, *opsStub, *events.Recorder) {
	tokens := token.NewMemLedger()
	tokens.Mint(developer, 1_000_000)
	tokens.Mint(owner, 1_000_000)
	sink := &events.Recorder{}
	emitter := &emitterRecorder{}
	feePot := feePotRecorder(0)
	ops := &opsStub{transmitters: make(map[common.Hash][]common.Address)}

	cfg := config.Default()
	cfg.ProtocolRegisterFee = 1000
	cfg.ManualTransmitterFee = 10
	cfg.MinProtocolBalance = 100
	cfg.InitNewChainFee = 50

	r := NewRegistry(log.NewNoOpLogger(), cfg, tokens, sink)
	r.SetCollaborators(emitter, &feePot, ops)
	r.ApproveDeveloper(developer)
	return r, tokens, emitter, &feePot, ops, sink
}

func register(t *testing.T, r *Registry) {
	require.NoError(t, r.RegisterProtocol(developer, protocolID, owner, defaultParams(), []common.Address{manual1}))
}

func TestRegisterProtocol(t *testing.T) {
	require := require.New(t)
	r, tokens, _, feePot, _, _ := newTestRegistry(t)

	require.ErrorIs(
		r.RegisterProtocol(owner, protocolID, owner, defaultParams(), []common.Address{manual1}),
		ErrNotApprovedDeveloper,
	)
	register(t, r)
	require.Equal(uint64(1000), uint64(*feePot))
	require.Equal(uint64(1_000_000-1000), tokens.BalanceOf(developer))
	require.True(r.Exists(protocolID))
	require.Equal([]common.Hash{protocolID}, r.ActiveProtocols())

	require.ErrorIs(
		r.RegisterProtocol(developer, protocolID, owner, defaultParams(), []common.Address{manual2}),
		ErrProtocolAlreadyExists,
	)
}

func TestRegisterValidations(t *testing.T) {
	require := require.New(t)
	r, _, _, _, _, _ := newTestRegistry(t)

	params := defaultParams()
	params.ConsensusTargetRate = 5500
	require.ErrorIs(
		r.RegisterProtocol(developer, protocolID, owner, params, []common.Address{manual1}),
		ErrInvalidConsensusRate,
	)

	require.ErrorIs(
		r.RegisterProtocol(developer, protocolID, owner, defaultParams(), nil),
		ErrNoManualTransmitters,
	)

	require.ErrorIs(
		r.RegisterProtocol(developer, protocolID, owner, defaultParams(), []common.Address{{}}),
		ErrZeroAddress,
	)

	require.ErrorIs(
		r.RegisterProtocol(developer, protocolID, owner, defaultParams(), []common.Address{manual1, manual1}),
		ErrDuplicateTransmitter,
	)
}

func TestManualCapInvariant(t *testing.T) {
	require := require.New(t)
	r, _, _, _, _, _ := newTestRegistry(t)

	// maxTransmitters=10, rate=7000 -> floor(10*3000/10000)+1 = 4 manuals
	params := defaultParams()
	params.ConsensusTargetRate = 7000
	manuals := []common.Address{
		common.HexToAddress("0x41"),
		common.HexToAddress("0x42"),
		common.HexToAddress("0x43"),
		common.HexToAddress("0x44"),
	}
	require.NoError(r.RegisterProtocol(developer, protocolID, owner, params, manuals))

	other := common.HexToHash("0x71")
	fiveManuals := append([]common.Address{
		common.HexToAddress("0x51"),
		common.HexToAddress("0x52"),
		common.HexToAddress("0x53"),
		common.HexToAddress("0x54"),
	}, common.HexToAddress("0x55"))
	require.ErrorIs(
		r.RegisterProtocol(developer, other, owner, params, fiveManuals),
		ErrManualTransmittersLimitExceeded,
	)
}

func TestManualTransmitterClaims(t *testing.T) {
	require := require.New(t)
	r, _, _, _, _, _ := newTestRegistry(t)

	register(t, r)
	other := common.HexToHash("0x71")
	require.ErrorIs(
		r.RegisterProtocol(developer, other, owner, defaultParams(), []common.Address{manual1}),
		ErrTransmitterClaimed,
	)
	require.True(r.IsManualTransmitter(protocolID, manual1))
	require.False(r.IsManualTransmitter(other, manual1))
}

func TestSetManualTransmittersFee(t *testing.T) {
	require := require.New(t)
	r, _, _, feePot, _, _ := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 500))
	before := uint64(*feePot)

	// one kept, one added: one manual-transmitter fee
	require.NoError(r.SetManualTransmitters(owner, protocolID, []common.Address{manual1, manual2}))
	require.Equal(before+10, uint64(*feePot))
	require.Equal(uint64(490), r.Balance(protocolID))
	require.True(r.IsManualTransmitter(protocolID, manual2))

	// dropped manuals release their claim
	require.NoError(r.SetManualTransmitters(owner, protocolID, []common.Address{manual2}))
	require.False(r.IsManualTransmitter(protocolID, manual1))
}

func TestDeduceFeePausesWhenShort(t *testing.T) {
	require := require.New(t)
	r, _, _, _, _, sink := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 100))

	require.True(r.DeduceFee(protocolID, 60))
	require.Equal(uint64(40), r.Balance(protocolID))
	require.False(r.IsPaused(protocolID))

	require.False(r.DeduceFee(protocolID, 40)) // balance must stay above the fee
	require.True(r.IsPaused(protocolID))
	require.Len(sink.Named("SetProtocolPause"), 1)
}

func TestInitStateMachine(t *testing.T) {
	require := require.New(t)
	r, _, emitter, _, ops, _ := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 1000))
	ops.transmitters[protocolID] = []common.Address{manual1}

	chainID := *uint256.NewInt(137)
	addr1 := []byte{0x01}
	addr2 := []byte{0x02}
	proposer := []byte{0x03}

	// first address starts the init handshake
	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, addr1))
	require.Equal(OnInition, r.InitState(protocolID, chainID))
	require.Len(*emitter, 1)
	_, isProposal := (*emitter)[0].msg.(wire.AddAllowedProtocol)
	require.True(isProposal)
	require.Equal(uint64(950), r.Balance(protocolID)) // init-new-chain fee

	// further additions queue silently
	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, addr2))
	require.NoError(r.AddAllowedProposerAddress(owner, protocolID, chainID, proposer))
	require.Len(*emitter, 1)
	require.False(r.IsProtocolAddressAllowed(protocolID, chainID, addr1))

	// endpoint callback flushes the queues in order
	require.NoError(r.HandleAddAllowedProtocol(protocolID, chainID))
	require.Equal(Inited, r.InitState(protocolID, chainID))
	require.True(r.IsProtocolAddressAllowed(protocolID, chainID, addr1))
	require.True(r.IsProtocolAddressAllowed(protocolID, chainID, addr2))
	require.True(r.IsProposerAllowed(protocolID, chainID, proposer))
	require.Len(*emitter, 4)

	// once inited, additions emit directly
	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, []byte{0x04}))
	require.Len(*emitter, 5)

	// a second callback is rejected
	require.ErrorIs(r.HandleAddAllowedProtocol(protocolID, chainID), ErrProtocolIsNotInitedOnChain)
}

func TestExecutors(t *testing.T) {
	require := require.New(t)
	r, _, _, _, ops, _ := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 1000))
	ops.transmitters[protocolID] = []common.Address{manual1}
	chainID := *uint256.NewInt(1)
	executor := []byte{0x0e}

	require.ErrorIs(r.AddExecutor(owner, protocolID, chainID, executor), ErrProtocolIsNotInitedOnChain)

	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, []byte{0x01}))
	require.NoError(r.AddExecutor(owner, protocolID, chainID, executor))
	require.NoError(r.RemoveExecutor(owner, protocolID, chainID, executor))
}

func TestLastGovExecutorProtected(t *testing.T) {
	require := require.New(t)
	r, _, _, _, ops, _ := newTestRegistry(t)

	require.NoError(r.RegisterGovProtocol(owner, defaultParams(), []common.Address{manual1}))
	ops.transmitters[wire.GovProtocolID] = []common.Address{manual1}
	chainID := *uint256.NewInt(1)
	executor := []byte{0x0e}

	require.NoError(r.AddAllowedProtocolAddress(owner, wire.GovProtocolID, chainID, []byte{0x01}))
	require.NoError(r.AddExecutor(owner, wire.GovProtocolID, chainID, executor))
	require.ErrorIs(
		r.RemoveExecutor(owner, wire.GovProtocolID, chainID, executor),
		ErrLastGovExecutor,
	)
}

func TestTurnRoundPromotesAndRetires(t *testing.T) {
	require := require.New(t)
	r, _, emitter, _, ops, _ := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 1000))
	ops.transmitters[protocolID] = []common.Address{manual1}
	chainID := *uint256.NewInt(1)
	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, []byte{0x01}))

	// a realtime rate change propagates at the turn
	params := defaultParams()
	params.ConsensusTargetRate = 8000
	require.NoError(r.SetProtocolParams(owner, protocolID, params))
	require.Equal(uint64(6000), r.ConsensusTargetRate(protocolID))

	emitted := len(*emitter)
	require.NoError(r.TurnRound())
	require.Equal(uint64(8000), r.ConsensusTargetRate(protocolID))
	require.Len(*emitter, emitted+1)
	rateMsg, ok := (*emitter)[emitted].msg.(wire.SetConsensusTargetRate)
	require.True(ok)
	require.Equal(uint64(8000), rateMsg.ConsensusTargetRate)

	// retiring moves the balance to the owner and clears transmitters
	require.NoError(r.SetActive(owner, protocolID, false))
	require.NoError(r.TurnRound())
	require.True(r.IsPaused(protocolID))
	require.Zero(r.Balance(protocolID))
	require.Empty(ops.transmitters[protocolID])
	require.NoError(r.WithdrawUnlocked(owner))
}

func TestUnhealthyProtocolPaused(t *testing.T) {
	require := require.New(t)
	r, _, _, _, ops, _ := newTestRegistry(t)

	register(t, r)
	ops.transmitters[protocolID] = nil
	// balance 0 < MinProtocolBalance 100
	require.NoError(r.TurnRound())
	require.True(r.IsPaused(protocolID))
}

func TestOnTransmittersUpdated(t *testing.T) {
	require := require.New(t)
	r, _, emitter, _, ops, _ := newTestRegistry(t)

	register(t, r)
	require.NoError(r.AddBalance(owner, protocolID, 1000))
	ops.transmitters[protocolID] = []common.Address{manual1}
	chainID := *uint256.NewInt(1)
	require.NoError(r.AddAllowedProtocolAddress(owner, protocolID, chainID, []byte{0x01}))

	trA := common.HexToAddress("0x61")
	trB := common.HexToAddress("0x62")

	// while initing, the full current set queues
	require.NoError(r.OnTransmittersUpdated(protocolID, []common.Address{manual1, trA}, []common.Address{trA}, nil))
	emitted := len(*emitter)

	ops.transmitters[protocolID] = []common.Address{manual1, trA}
	require.NoError(r.HandleAddAllowedProtocol(protocolID, chainID))
	flushed := (*emitter)[len(*emitter)-1].msg.(wire.AddOrRemoveTransmitters)
	require.Equal([]common.Address{manual1, trA}, flushed.Transmitters)
	require.False(flushed.Remove)
	require.Greater(len(*emitter), emitted)

	// once inited: add-only, remove-only and mixed use the narrowest message
	require.NoError(r.OnTransmittersUpdated(protocolID, []common.Address{manual1, trA, trB}, []common.Address{trB}, nil))
	_, ok := (*emitter)[len(*emitter)-1].msg.(wire.AddOrRemoveTransmitters)
	require.True(ok)

	require.NoError(r.OnTransmittersUpdated(protocolID, []common.Address{manual1, trA}, nil, []common.Address{trB}))
	rm := (*emitter)[len(*emitter)-1].msg.(wire.AddOrRemoveTransmitters)
	require.True(rm.Remove)

	require.NoError(r.OnTransmittersUpdated(protocolID, []common.Address{manual1, trB}, []common.Address{trB}, []common.Address{trA}))
	_, ok = (*emitter)[len(*emitter)-1].msg.(wire.UpdateTransmitters)
	require.True(ok)
}
