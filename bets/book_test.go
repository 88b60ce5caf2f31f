// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bets

import (
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/timer/mockable"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/hub/config"
)

var (
	protocolID = common.HexToHash("0x01")
	opHash     = common.HexToHash("0xaa")

	manualTr = common.HexToAddress("0x10")
	tr1      = common.HexToAddress("0x11")
	tr2      = common.HexToAddress("0x12")
	tr3      = common.HexToAddress("0x13")

	agent1 = common.HexToAddress("0x21")
	agent2 = common.HexToAddress("0x22")
	agent3 = common.HexToAddress("0x23")
)

type stakeRecorder struct {
	locked      map[common.Address]uint64
	slashed     map[common.Address]uint64
	confiscated map[common.Address]uint64
	systemFee   uint64
}

func newStakeRecorder() *stakeRecorder {
	return &stakeRecorder{
		locked:      make(map[common.Address]uint64),
		slashed:     make(map[common.Address]uint64),
		confiscated: make(map[common.Address]uint64),
	}
}

func (s *stakeRecorder) LockAgentStake(agent common.Address, amount uint64) error {
	s.locked[agent] += amount
	return nil
}

func (s *stakeRecorder) UnlockAgentStake(agent common.Address, amount uint64) error {
	if s.locked[agent] < amount {
		return ErrNoBet
	}
	s.locked[agent] -= amount
	return nil
}

func (s *stakeRecorder) ConfiscateLocked(agent common.Address, amount uint64) error {
	s.locked[agent] -= amount
	s.confiscated[agent] += amount
	return nil
}

func (s *stakeRecorder) Slash(agent common.Address, amount uint64) error {
	s.slashed[agent] += amount
	return nil
}

func (s *stakeRecorder) CreditSystemFee(amount uint64) {
	s.systemFee += amount
}

type protocolStub struct {
	paused  bool
	balance uint64
}

func (p *protocolStub) IsPaused(common.Hash) bool { return p.paused }

func (p *protocolStub) IsManualTransmitter(_ common.Hash, tr common.Address) bool {
	return tr == manualTr
}

func (p *protocolStub) BetAmount(_ common.Hash, data bool) uint64 {
	if data {
		return 7
	}
	return 5
}

func (p *protocolStub) RewardAmount(_ common.Hash, data, first bool) uint64 {
	switch {
	case data && first:
		return 40
	case data:
		return 20
	case first:
		return 30
	default:
		return 10
	}
}

func (p *protocolStub) MinPersonalAmount(common.Hash) uint64 { return 100 }

func (p *protocolStub) DeduceFee(_ common.Hash, amount uint64) bool {
	if p.balance > amount {
		p.balance -= amount
		return true
	}
	return false
}

type agentStub map[common.Address]common.Address

func (a agentStub) AgentByTransmitter(tr common.Address) (common.Address, bool) {
	agent, ok := a[tr]
	return agent, ok
}

type removerStub []common.Address

func (r *removerStub) RemoveTransmitter(_ common.Hash, tr common.Address) error {
	*r = append(*r, tr)
	return nil
}

func current(common.Hash) []common.Address {
	return []common.Address{manualTr, tr1, tr2, tr3}
}

func newTestBook(t *testing.T) (*Book, *stakeRecorder, *protocolStub, *removerStub, *mockable.Clock) {
	stakes := newStakeRecorder()
	protos := &protocolStub{balance: 10_000}
	removed := &removerStub{}
	clk := &mockable.Clock{}
	clk.Set(time.Unix(1_700_000_000, 0))

	cfg := config.Default()
	cfg.SlashingBorder = 3
	cfg.ProtocolOperationFee = 2

	b := NewBook(log.NewNoOpLogger(), cfg, clk)
	b.SetCollaborators(stakes, protos, agentStub{tr1: agent1, tr2: agent2, tr3: agent3}, removed)
	return b, stakes, protos, removed, clk
}

func TestPlaceBetLocksStake(t *testing.T) {
	require := require.New(t)
	b, stakes, _, _, _ := newTestBook(t)

	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.Equal(uint64(5), b.BetOf(agent1, opHash))
	require.Equal(uint64(5), stakes.locked[agent1])

	// a second bet by the same transmitter accumulates
	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.Equal(uint64(10), b.BetOf(agent1, opHash))
}

func TestPlaceBetTypeStable(t *testing.T) {
	require := require.New(t)
	b, _, _, _, _ := newTestBook(t)

	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.ErrorIs(b.PlaceBet(protocolID, tr2, Data, opHash, current), ErrBetTypeMismatch)
}

func TestPlaceBetManualNoStakeMove(t *testing.T) {
	require := require.New(t)
	b, stakes, _, _, _ := newTestBook(t)

	require.NoError(b.PlaceBet(protocolID, manualTr, Msg, opHash, current))
	require.Empty(stakes.locked)
}

func TestPlaceBetPaused(t *testing.T) {
	require := require.New(t)
	b, _, protos, _, _ := newTestBook(t)

	protos.paused = true
	require.ErrorIs(b.PlaceBet(protocolID, tr1, Msg, opHash, current), ErrProtocolPaused)
}

func TestPlaceBetUnknownAgent(t *testing.T) {
	require := require.New(t)
	b, _, _, _, _ := newTestBook(t)

	require.ErrorIs(b.PlaceBet(protocolID, common.HexToAddress("0x99"), Msg, opHash, current), ErrAgentNotFound)
}

func TestReleaseRewardsFirstBetDifferential(t *testing.T) {
	require := require.New(t)
	b, stakes, _, _, _ := newTestBook(t)

	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.NoError(b.PlaceBet(protocolID, tr2, Msg, opHash, current))

	require.NoError(b.ReleaseBetsAndReward(protocolID, []common.Address{tr1, tr2}, opHash))

	rewards := b.TakeRewards()
	require.Len(rewards, 2)
	require.Equal(agent1, rewards[0].Agent)
	require.Equal(uint64(30), rewards[0].Amount) // first bet
	require.Equal(agent2, rewards[1].Agent)
	require.Equal(uint64(10), rewards[1].Amount)

	// bets unlocked, protocol operation fee credited
	require.Zero(stakes.locked[agent1])
	require.Zero(stakes.locked[agent2])
	require.Equal(uint64(2), stakes.systemFee)

	// rewards drained
	require.Empty(b.TakeRewards())
}

func TestInactivitySlashing(t *testing.T) {
	require := require.New(t)
	b, stakes, _, removed, _ := newTestBook(t)

	// tr3 bets but never wins: three settled operations push it over the
	// slashing border
	for i := byte(1); i <= 3; i++ {
		op := common.BytesToHash([]byte{i})
		require.NoError(b.PlaceBet(protocolID, tr1, Msg, op, current))
		require.NoError(b.PlaceBet(protocolID, tr3, Msg, op, current))
		require.NoError(b.ReleaseBetsAndReward(protocolID, []common.Address{tr1}, op))
	}

	require.Equal(uint64(100), stakes.slashed[agent3])
	require.Zero(b.Inactivity(tr3))

	// tr2 never placed a bet but was in the snapshot: it also accrued
	// inactivity and got slashed
	require.Equal(uint64(100), stakes.slashed[agent2])
	require.Equal([]common.Address{tr2, tr3}, []common.Address(*removed))
}

func TestReleaseResetsWinnerInactivity(t *testing.T) {
	require := require.New(t)
	b, _, _, _, _ := newTestBook(t)

	op1 := common.BytesToHash([]byte{1})
	require.NoError(b.PlaceBet(protocolID, tr1, Msg, op1, current))
	require.NoError(b.PlaceBet(protocolID, tr2, Msg, op1, current))
	require.NoError(b.ReleaseBetsAndReward(protocolID, []common.Address{tr2}, op1))
	require.Equal(uint64(1), b.Inactivity(tr1))

	op2 := common.BytesToHash([]byte{2})
	require.NoError(b.PlaceBet(protocolID, tr1, Msg, op2, current))
	require.NoError(b.ReleaseBetsAndReward(protocolID, []common.Address{tr1}, op2))
	require.Zero(b.Inactivity(tr1))
}

func TestReleaseSkipsRewardWhenBalanceShort(t *testing.T) {
	require := require.New(t)
	b, stakes, protos, _, _ := newTestBook(t)

	protos.balance = 3 // cannot cover the 30 first-bet reward
	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.NoError(b.ReleaseBetsAndReward(protocolID, []common.Address{tr1}, opHash))

	// no reward registered, but the bet still unlocked
	require.Empty(b.TakeRewards())
	require.Zero(stakes.locked[agent1])
}

func TestRefundBet(t *testing.T) {
	require := require.New(t)
	b, stakes, _, _, _ := newTestBook(t)

	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.NoError(b.RefundBet(protocolID, opHash, tr1))
	require.Zero(b.BetOf(agent1, opHash))
	require.Zero(stakes.locked[agent1])
	require.Empty(b.TakeRewards())
}

func TestPruneBet(t *testing.T) {
	require := require.New(t)
	b, stakes, _, _, clk := newTestBook(t)

	require.ErrorIs(b.PruneBet(agent1, opHash), ErrNoBet)
	require.NoError(b.PlaceBet(protocolID, tr1, Msg, opHash, current))
	require.ErrorIs(b.PruneBet(agent1, opHash), ErrTimeoutNotElapsed)

	clk.Set(clk.Time().Add(config.MinBetTimeout))
	require.NoError(b.PruneBet(agent1, opHash))
	require.Zero(b.BetOf(agent1, opHash))
	require.Equal(uint64(5), stakes.confiscated[agent1])
}
