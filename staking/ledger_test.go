// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package staking

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/token"
)

var (
	agentA = common.HexToAddress("0xa1")
	agentB = common.HexToAddress("0xa2")
	alice  = common.HexToAddress("0xd1")
	bob    = common.HexToAddress("0xd2")
)

func newTestLedger(t *testing.T) (*Ledger, *token.MemLedger, *events.Recorder) {
	tokens := token.NewMemLedger()
	sink := &events.Recorder{}
	cfg := config.Default()
	cfg.AgentRewardFee = 1000 // 10% system skim
	l := NewLedger(log.NewNoOpLogger(), cfg, tokens, sink)

	for _, addr := range []common.Address{agentA, agentB} {
		require.NoError(t, l.RegisterAgent(addr, 2000)) // 20% agent fee
	}
	for _, addr := range []common.Address{alice, bob, agentA, agentB} {
		tokens.Mint(addr, 1_000_000)
	}
	// reward payouts draw on hub custody, which protocol balances fund in
	// production
	treasury := common.HexToAddress("0x77")
	tokens.Mint(treasury, 1_000_000)
	require.NoError(t, tokens.Deposit(treasury, 1_000_000))
	return l, tokens, sink
}

func TestDelegateRejectsBadInput(t *testing.T) {
	require := require.New(t)
	l, _, _ := newTestLedger(t)

	require.ErrorIs(l.Delegate(alice, agentA, 0), ErrZeroAmount)
	require.ErrorIs(l.Delegate(alice, common.HexToAddress("0xff"), 5), ErrAgentNotFound)

	require.NoError(l.SetApproved(agentA, false))
	require.ErrorIs(l.Delegate(alice, agentA, 5), ErrNotApprovedAgent)
}

func TestDelegateWithdraw(t *testing.T) {
	require := require.New(t)
	l, tokens, _ := newTestLedger(t)

	base := tokens.Custody()
	require.NoError(l.Delegate(alice, agentA, 400))
	require.NoError(l.Delegate(bob, agentA, 600))
	require.Equal(uint64(1000), l.agents[agentA].realtimeStake)
	require.Equal(base+1000, tokens.Custody())

	require.ErrorIs(l.WithdrawDelegation(alice, agentA, 500), ErrInsufficientStake)
	require.NoError(l.WithdrawDelegation(alice, agentA, 400))
	require.Equal(uint64(600), l.agents[agentA].realtimeStake)
	require.Equal(uint64(1_000_000), tokens.BalanceOf(alice))
}

func TestRewardSnapshotProportional(t *testing.T) {
	require := require.New(t)
	l, tokens, sink := newTestLedger(t)

	require.NoError(l.Delegate(alice, agentA, 300))
	require.NoError(l.Delegate(bob, agentA, 100))

	// round 1: 1000 reward -> 100 system fee, 180 agent, 720 delegators
	require.NoError(l.DistributeRewards([]AgentReward{{Agent: agentA, Amount: 1000}}))
	require.NoError(l.TurnRound())
	require.Equal(uint64(2), l.Round())
	require.Equal(uint64(100), l.SystemFee())

	aliceBefore := tokens.BalanceOf(alice)
	require.NoError(l.ClaimRewards(alice, agentA))
	require.Equal(aliceBefore+540, tokens.BalanceOf(alice)) // 720 * 300/400

	bobBefore := tokens.BalanceOf(bob)
	require.NoError(l.ClaimRewards(bob, agentA))
	require.Equal(bobBefore+180, tokens.BalanceOf(bob)) // 720 * 100/400

	// claiming twice pays nothing more
	require.NoError(l.ClaimRewards(alice, agentA))
	require.Equal(aliceBefore+540, tokens.BalanceOf(alice))

	agentBefore := tokens.BalanceOf(agentA)
	require.NoError(l.ClaimAgentReward(agentA))
	require.Equal(agentBefore+180, tokens.BalanceOf(agentA))

	require.Len(sink.Named("RewardClaimed"), 2)
}

func TestDelegateClaimsBeforeMixing(t *testing.T) {
	require := require.New(t)
	l, tokens, _ := newTestLedger(t)

	require.NoError(l.Delegate(alice, agentA, 100))
	require.NoError(l.DistributeRewards([]AgentReward{{Agent: agentA, Amount: 100}}))
	require.NoError(l.TurnRound())

	// topping up in round 2 first settles round 1 at the old share
	before := tokens.BalanceOf(alice)
	require.NoError(l.Delegate(alice, agentA, 900))
	require.Equal(before+72-900, tokens.BalanceOf(alice))
}

func TestSlashedRoundPaysNothing(t *testing.T) {
	require := require.New(t)
	l, tokens, _ := newTestLedger(t)

	require.NoError(l.Delegate(alice, agentA, 100))
	require.NoError(l.DepositPersonalStake(agentA, 50))
	require.NoError(l.Slash(agentA, 20))
	require.Equal(uint64(30), l.PersonalStake(agentA))
	require.Equal(uint64(20), l.SystemFee())

	// the slashed round's reward is attributed to the system fee
	require.NoError(l.DistributeRewards([]AgentReward{{Agent: agentA, Amount: 1000}}))
	require.Equal(uint64(1020), l.SystemFee())
	require.NoError(l.TurnRound())

	before := tokens.BalanceOf(alice)
	require.NoError(l.ClaimRewards(alice, agentA))
	require.Equal(before, tokens.BalanceOf(alice))
}

func TestPersonalStakeLifecycle(t *testing.T) {
	require := require.New(t)
	l, tokens, sink := newTestLedger(t)

	require.NoError(l.DepositPersonalStake(agentA, 500))
	require.ErrorIs(l.RequestWithdrawPersonalStake(agentA, 501), ErrTryingToWithdrawTooMuch)
	require.NoError(l.RequestWithdrawPersonalStake(agentA, 200))

	require.ErrorIs(l.WithdrawPersonalStake(agentA), ErrNoWithdrawRequested)
	require.NoError(l.TurnRound())

	before := tokens.BalanceOf(agentA)
	require.NoError(l.WithdrawPersonalStake(agentA))
	require.Equal(before+200, tokens.BalanceOf(agentA))
	require.Equal(uint64(300), l.PersonalStake(agentA))

	// the emitted amount is the pre-zero ready amount
	withdrawn := sink.Named("WithdrawPersonalStake")
	require.Len(withdrawn, 1)
	require.Equal(uint64(200), withdrawn[0].(events.WithdrawPersonalStake).Amount)
}

func TestCancelWithdraw(t *testing.T) {
	require := require.New(t)
	l, _, sink := newTestLedger(t)

	require.ErrorIs(l.CancelWithdrawPersonalStake(agentA), ErrNoWithdrawRequested)
	require.NoError(l.DepositPersonalStake(agentA, 100))
	require.NoError(l.RequestWithdrawPersonalStake(agentA, 100))
	require.NoError(l.CancelWithdrawPersonalStake(agentA))
	require.Len(sink.Named("CancelWithdrawPersonalStake"), 1)

	require.NoError(l.TurnRound())
	require.ErrorIs(l.WithdrawPersonalStake(agentA), ErrNoWithdrawRequested)
}

func TestLockUnlock(t *testing.T) {
	require := require.New(t)
	l, _, _ := newTestLedger(t)

	require.NoError(l.DepositPersonalStake(agentA, 100))
	require.ErrorIs(l.LockAgentStake(agentA, 101), ErrInsufficientPersonalStake)
	require.NoError(l.LockAgentStake(agentA, 60))
	require.Equal(uint64(40), l.PersonalStake(agentA))

	require.ErrorIs(l.UnlockAgentStake(agentA, 61), ErrUnlockTooMuch)
	require.NoError(l.UnlockAgentStake(agentA, 60))
	require.Equal(uint64(100), l.PersonalStake(agentA))
}

func TestTurnRoundPromotes(t *testing.T) {
	require := require.New(t)
	l, _, _ := newTestLedger(t)

	require.NoError(l.Delegate(alice, agentA, 250))
	require.NoError(l.SetFee(agentA, 3333))
	require.NotEqual(l.agents[agentA].activeFee, uint64(3333))

	require.NoError(l.TurnRound())
	a := l.agents[agentA]
	require.Equal(a.realtimeStake, a.activeStake)
	require.Equal(uint64(3333), a.activeFee)
	require.Equal(uint64(250), a.rewards[1].TotalDelegate)
}

func TestWithdrawSystemFee(t *testing.T) {
	require := require.New(t)
	l, tokens, _ := newTestLedger(t)

	collector := common.HexToAddress("0xfee")
	require.NoError(l.cfg.SetFeeCollector(collector))
	require.NoError(l.Delegate(alice, agentA, 100))
	l.CreditSystemFee(40)

	require.ErrorIs(l.WithdrawSystemFee(alice), ErrIsNotFeeCollector)
	require.NoError(l.WithdrawSystemFee(collector))
	require.Equal(uint64(40), tokens.BalanceOf(collector))
	require.Zero(l.SystemFee())
}
