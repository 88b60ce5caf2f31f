// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package staking keeps the delegator ledger, per-round reward snapshots, the
// personal-stake lifecycle and the sorted agent directory, and elects
// transmitters for protocols from that directory.
package staking

import (
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/ordered"
	"github.com/photonlabs/hub/token"
)

var (
	ErrNotApprovedAgent          = errors.New("agent is not approved")
	ErrAgentNotActive            = errors.New("agent is not active")
	ErrAgentNotFound             = errors.New("agent not found")
	ErrZeroAmount                = errors.New("zero amount")
	ErrInsufficientStake         = errors.New("insufficient stake")
	ErrInsufficientPersonalStake = errors.New("insufficient personal stake")
	ErrInvalidFeeRate            = errors.New("invalid fee rate")
	ErrInvalidRoundCondition     = errors.New("invalid round condition")
	ErrUnlockTooMuch             = errors.New("unlocking more than is locked")
	ErrNoWithdrawRequested       = errors.New("no withdraw requested")
	ErrTryingToWithdrawTooMuch   = errors.New("trying to withdraw too much")
	ErrIsNotFeeCollector         = errors.New("caller is not the fee collector")
)

// Reward is the per-round economic snapshot of one agent.
type Reward struct {
	AgentReward    uint64
	DelegateReward uint64
	TotalDelegate  uint64
	Slashed        bool
}

// AgentReward is one entry of the reward list the bet book hands over at
// round turn.
type AgentReward struct {
	Agent  common.Address
	Amount uint64
}

type delegation struct {
	stake                 uint64
	lastStakeUnstakeRound uint64
	lastClaimRound        uint64
}

type agent struct {
	approved bool
	active   bool
	paused   bool

	realtimeStake uint64
	activeStake   uint64
	realtimeFee   uint64
	activeFee     uint64

	personalStake     uint64
	lockedPersonal    uint64
	withdrawRequested uint64
	withdrawReady     uint64

	lastClaimRound uint64
	lastSlashRound uint64

	rewards     map[uint64]*Reward
	delegations map[common.Address]*delegation
}

func (a *agent) reward(round uint64) *Reward {
	r, ok := a.rewards[round]
	if !ok {
		r = &Reward{}
		a.rewards[round] = r
	}
	return r
}

// ProtocolParams is the slice of the protocol registry transmitter election
// reads.
type ProtocolParams interface {
	ManualTransmitters(protocolID common.Hash) []common.Address
	MaxTransmitters(protocolID common.Hash) uint64
	MinDelegateAmount(protocolID common.Hash) uint64
	MinPersonalAmount(protocolID common.Hash) uint64
}

// TransmitterResolver maps an agent to the transmitter it declared for a
// protocol.
type TransmitterResolver interface {
	TransmitterFor(agent common.Address, protocolID common.Hash) (common.Address, bool)
}

// Ledger is the hub's staking state. Rounds start at 1; all rates are scaled
// by config.RateDenominator.
type Ledger struct {
	log    log.Logger
	cfg    *config.Global
	tokens token.Ledger
	sink   events.Sink

	protocols ProtocolParams
	resolver  TransmitterResolver

	round     uint64
	agents    map[common.Address]*agent
	directory ordered.List[common.Address]

	// rewardCollectors redirects a delegator's claims, per agent.
	rewardCollectors map[common.Address]map[common.Address]common.Address

	systemFee uint64
}

func NewLedger(logger log.Logger, cfg *config.Global, tokens token.Ledger, sink events.Sink) *Ledger {
	l := &Ledger{
		log:              logger,
		cfg:              cfg,
		tokens:           tokens,
		sink:             sink,
		round:            1,
		agents:           make(map[common.Address]*agent),
		rewardCollectors: make(map[common.Address]map[common.Address]common.Address),
	}
	// the directory orders agents by realtime delegation, largest first
	_ = l.directory.Init(ordered.Descending)
	return l
}

// SetCollaborators wires the handles the ledger needs from other components.
// It is part of the single-shot contract wiring.
func (l *Ledger) SetCollaborators(protocols ProtocolParams, resolver TransmitterResolver) {
	if l.protocols == nil {
		l.protocols = protocols
		l.resolver = resolver
	}
}

func (l *Ledger) Round() uint64 {
	return l.round
}

func (l *Ledger) SystemFee() uint64 {
	return l.systemFee
}

// CreditSystemFee accrues [amount] to the system fee pot. The tokens are
// already in hub custody.
func (l *Ledger) CreditSystemFee(amount uint64) {
	l.systemFee += amount
}

// WithdrawSystemFee pays the accrued system fee out to the fee collector.
func (l *Ledger) WithdrawSystemFee(caller common.Address) error {
	if caller != l.cfg.FeeCollector || caller == (common.Address{}) {
		return ErrIsNotFeeCollector
	}
	amount := l.systemFee
	l.systemFee = 0
	return l.tokens.Pay(caller, amount)
}

// RegisterAgent admits a new agent with the given realtime fee rate.
func (l *Ledger) RegisterAgent(addr common.Address, fee uint64) error {
	if fee > config.RateDenominator {
		return ErrInvalidFeeRate
	}
	if _, ok := l.agents[addr]; ok {
		return nil
	}
	l.agents[addr] = &agent{
		approved:    true,
		active:      true,
		realtimeFee: fee,
		activeFee:   fee,
		rewards:     make(map[uint64]*Reward),
		delegations: make(map[common.Address]*delegation),
	}
	return l.directory.Set(addr, 0)
}

func (l *Ledger) getAgent(addr common.Address) (*agent, error) {
	a, ok := l.agents[addr]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a, nil
}

// SetApproved flips an agent's membership in the global approved set.
func (l *Ledger) SetApproved(addr common.Address, approved bool) error {
	a, err := l.getAgent(addr)
	if err != nil {
		return err
	}
	a.approved = approved
	return nil
}

func (l *Ledger) IsApproved(addr common.Address) bool {
	a, ok := l.agents[addr]
	return ok && a.approved
}

// SetPaused lets an agent step out of transmitter election without
// unwinding its stake.
func (l *Ledger) SetPaused(addr common.Address, paused bool) error {
	a, err := l.getAgent(addr)
	if err != nil {
		return err
	}
	a.paused = paused
	return nil
}

// SetFee updates the agent's realtime fee rate; it becomes active on the next
// round turn.
func (l *Ledger) SetFee(addr common.Address, fee uint64) error {
	a, err := l.getAgent(addr)
	if err != nil {
		return err
	}
	if fee > config.RateDenominator {
		return ErrInvalidFeeRate
	}
	a.realtimeFee = fee
	l.sink.Emit(events.UpdateFee{Agent: addr, Fee: fee})
	return nil
}

// SetRewardCollector redirects [delegator]'s future claims against [agentAddr]
// to [collector].
func (l *Ledger) SetRewardCollector(delegator, agentAddr, collector common.Address) {
	m, ok := l.rewardCollectors[delegator]
	if !ok {
		m = make(map[common.Address]common.Address)
		l.rewardCollectors[delegator] = m
	}
	m[agentAddr] = collector
}

// Delegate locks [amount] of [sender]'s tokens behind [agentAddr]. Pending
// rewards are claimed first so old and new shares never mix.
func (l *Ledger) Delegate(sender, agentAddr common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if !a.approved {
		return ErrNotApprovedAgent
	}
	if !a.active {
		return ErrAgentNotActive
	}
	if err := l.claimDelegatorRewards(sender, agentAddr); err != nil {
		return err
	}
	if err := l.addStake(sender, agentAddr, a, amount); err != nil {
		return err
	}
	l.sink.Emit(events.Delegate{Delegator: sender, Agent: agentAddr, Amount: amount})
	return l.tokens.Deposit(sender, amount)
}

// WithdrawDelegation is the inverse of Delegate.
func (l *Ledger) WithdrawDelegation(sender, agentAddr common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if err := l.claimDelegatorRewards(sender, agentAddr); err != nil {
		return err
	}
	if err := l.removeStake(sender, agentAddr, a, amount); err != nil {
		return err
	}
	l.sink.Emit(events.Withdraw{Delegator: sender, Agent: agentAddr, Amount: amount})
	return l.tokens.Pay(sender, amount)
}

// Redelegate moves [amount] of stake from one agent to another without any
// token movement.
func (l *Ledger) Redelegate(sender, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	fromAgent, err := l.getAgent(from)
	if err != nil {
		return err
	}
	toAgent, err := l.getAgent(to)
	if err != nil {
		return err
	}
	if !toAgent.approved {
		return ErrNotApprovedAgent
	}
	if !toAgent.active {
		return ErrAgentNotActive
	}
	if err := l.claimDelegatorRewards(sender, from); err != nil {
		return err
	}
	if err := l.claimDelegatorRewards(sender, to); err != nil {
		return err
	}
	if err := l.removeStake(sender, from, fromAgent, amount); err != nil {
		return err
	}
	if err := l.addStake(sender, to, toAgent, amount); err != nil {
		return err
	}
	l.sink.Emit(events.Redelegate{Delegator: sender, From: from, To: to, Amount: amount})
	return nil
}

func (l *Ledger) addStake(sender, agentAddr common.Address, a *agent, amount uint64) error {
	d, ok := a.delegations[sender]
	if !ok {
		d = &delegation{lastClaimRound: l.round}
		a.delegations[sender] = d
	}
	stake, err := safemath.Add(d.stake, amount)
	if err != nil {
		return err
	}
	realtime, err := safemath.Add(a.realtimeStake, amount)
	if err != nil {
		return err
	}
	d.stake = stake
	d.lastStakeUnstakeRound = l.round
	a.realtimeStake = realtime
	return l.directory.Set(agentAddr, realtime)
}

func (l *Ledger) removeStake(sender, agentAddr common.Address, a *agent, amount uint64) error {
	d, ok := a.delegations[sender]
	if !ok || d.stake < amount {
		return ErrInsufficientStake
	}
	d.stake -= amount
	d.lastStakeUnstakeRound = l.round
	a.realtimeStake -= amount
	return l.directory.Set(agentAddr, a.realtimeStake)
}

// ClaimRewards pays out [sender]'s accrued delegation rewards for [agentAddr].
func (l *Ledger) ClaimRewards(sender, agentAddr common.Address) error {
	if _, err := l.getAgent(agentAddr); err != nil {
		return err
	}
	return l.claimDelegatorRewards(sender, agentAddr)
}

// claimDelegatorRewards walks the unclaimed rounds and pays the delegator's
// proportional share of each round's delegate reward. Slashed rounds pay
// nothing.
func (l *Ledger) claimDelegatorRewards(sender, agentAddr common.Address) error {
	a := l.agents[agentAddr]
	d, ok := a.delegations[sender]
	if !ok {
		return nil
	}
	var amount uint64
	for r := d.lastClaimRound; r < l.round; r++ {
		reward, ok := a.rewards[r]
		if !ok || reward.Slashed || reward.TotalDelegate == 0 || reward.DelegateReward == 0 {
			continue
		}
		product, err := safemath.Mul(reward.DelegateReward, d.stake)
		if err != nil {
			return err
		}
		amount, err = safemath.Add(amount, product/reward.TotalDelegate)
		if err != nil {
			return err
		}
	}
	d.lastClaimRound = l.round
	if amount == 0 {
		return nil
	}
	recipient := sender
	if collector, ok := l.rewardCollectors[sender][agentAddr]; ok && collector != (common.Address{}) {
		recipient = collector
	}
	l.sink.Emit(events.RewardClaimed{Delegator: sender, Agent: agentAddr, Amount: amount})
	return l.tokens.Pay(recipient, amount)
}

// ClaimAgentReward pays out the agent's own accrued per-round rewards.
func (l *Ledger) ClaimAgentReward(agentAddr common.Address) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	var amount uint64
	for r := a.lastClaimRound; r < l.round; r++ {
		if reward, ok := a.rewards[r]; ok {
			amount, err = safemath.Add(amount, reward.AgentReward)
			if err != nil {
				return err
			}
		}
	}
	a.lastClaimRound = l.round
	if amount == 0 {
		return nil
	}
	l.sink.Emit(events.AgentRewardClaimed{Agent: agentAddr, Amount: amount})
	return l.tokens.Pay(agentAddr, amount)
}

// DepositPersonalStake adds to the agent's personal stake.
func (l *Ledger) DepositPersonalStake(agentAddr common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	personal, err := safemath.Add(a.personalStake, amount)
	if err != nil {
		return err
	}
	a.personalStake = personal
	l.sink.Emit(events.DepositPersonalStake{Agent: agentAddr, Amount: amount})
	return l.tokens.Deposit(agentAddr, amount)
}

// RequestWithdrawPersonalStake schedules [amount] of personal stake for
// withdrawal at the next round turn.
func (l *Ledger) RequestWithdrawPersonalStake(agentAddr common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	requested, err := safemath.Add(a.withdrawRequested, amount)
	if err != nil {
		return err
	}
	total, err := safemath.Add(a.personalStake, a.lockedPersonal)
	if err != nil {
		return err
	}
	if requested > total {
		return ErrTryingToWithdrawTooMuch
	}
	a.withdrawRequested = requested
	l.sink.Emit(events.RequestWithdrawPersonalStake{Agent: agentAddr, Amount: amount})
	return nil
}

func (l *Ledger) CancelWithdrawPersonalStake(agentAddr common.Address) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if a.withdrawRequested == 0 {
		return ErrNoWithdrawRequested
	}
	amount := a.withdrawRequested
	a.withdrawRequested = 0
	l.sink.Emit(events.CancelWithdrawPersonalStake{Agent: agentAddr, Amount: amount})
	return nil
}

// WithdrawPersonalStake pays out whatever a past round turn made ready.
func (l *Ledger) WithdrawPersonalStake(agentAddr common.Address) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	amount := a.withdrawReady
	if amount == 0 {
		return ErrNoWithdrawRequested
	}
	a.withdrawReady = 0
	l.sink.Emit(events.WithdrawPersonalStake{Agent: agentAddr, Amount: amount})
	return l.tokens.Pay(agentAddr, amount)
}

// LockAgentStake moves personal stake behind an open bet. The hub exposes no
// entry point for it; the bet book is its only caller.
func (l *Ledger) LockAgentStake(agentAddr common.Address, amount uint64) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if a.personalStake < amount {
		return ErrInsufficientPersonalStake
	}
	a.personalStake -= amount
	locked, err := safemath.Add(a.lockedPersonal, amount)
	if err != nil {
		return err
	}
	a.lockedPersonal = locked
	return nil
}

// UnlockAgentStake releases bet-locked stake back to the personal stake.
func (l *Ledger) UnlockAgentStake(agentAddr common.Address, amount uint64) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if a.lockedPersonal < amount {
		return ErrUnlockTooMuch
	}
	a.lockedPersonal -= amount
	personal, err := safemath.Add(a.personalStake, amount)
	if err != nil {
		return err
	}
	a.personalStake = personal
	return nil
}

// Slash moves up to [amount] of the agent's personal stake into the system
// fee and voids the current round's rewards for the agent.
func (l *Ledger) Slash(agentAddr common.Address, amount uint64) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if amount > a.personalStake {
		amount = a.personalStake
	}
	a.personalStake -= amount
	l.systemFee += amount
	a.reward(l.round).Slashed = true
	a.lastSlashRound = l.round
	l.sink.Emit(events.Slashed{Agent: agentAddr, Amount: amount})
	return nil
}

// SlashAll forfeits the agent's entire personal stake.
func (l *Ledger) SlashAll(agentAddr common.Address) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	return l.Slash(agentAddr, a.personalStake)
}

// PersonalStake returns the agent's unlocked personal stake.
func (l *Ledger) PersonalStake(agentAddr common.Address) uint64 {
	if a, ok := l.agents[agentAddr]; ok {
		return a.personalStake
	}
	return 0
}

// DistributeRewards consumes the per-agent reward list the bet book built
// during the round. Must run before TurnRound so round-N rewards land on
// round-N snapshots.
func (l *Ledger) DistributeRewards(rewards []AgentReward) error {
	for _, entry := range rewards {
		a, ok := l.agents[entry.Agent]
		if !ok {
			l.systemFee += entry.Amount
			continue
		}
		r := a.reward(l.round)
		if r.Slashed {
			l.systemFee += entry.Amount
			continue
		}
		fee := entry.Amount * l.cfg.AgentRewardFee / config.RateDenominator
		l.systemFee += fee
		remainder := entry.Amount - fee

		agentShare := remainder * a.activeFee / config.RateDenominator
		r.AgentReward += agentShare
		r.DelegateReward += remainder - agentShare
	}
	return nil
}

// TurnRound promotes realtime state to active, snapshots the round's
// delegation totals and matures withdraw requests, then advances the round.
func (l *Ledger) TurnRound() error {
	for _, a := range l.agents {
		a.activeStake = a.realtimeStake
		a.activeFee = a.realtimeFee
		a.reward(l.round).TotalDelegate = a.realtimeStake

		if a.withdrawRequested > 0 {
			amount := a.withdrawRequested
			if amount > a.personalStake {
				amount = a.personalStake
			}
			a.personalStake -= amount
			a.withdrawReady += amount
			a.withdrawRequested = 0
		}
	}
	l.round++
	l.log.Debug("staking round advanced", log.Uint64("round", l.round))
	return nil
}

// ConfiscateLocked moves bet-locked stake straight into the system fee.
// Used when a stale bet is pruned.
func (l *Ledger) ConfiscateLocked(agentAddr common.Address, amount uint64) error {
	a, err := l.getAgent(agentAddr)
	if err != nil {
		return err
	}
	if a.lockedPersonal < amount {
		return ErrUnlockTooMuch
	}
	a.lockedPersonal -= amount
	l.systemFee += amount
	return nil
}
