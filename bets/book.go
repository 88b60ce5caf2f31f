// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bets keeps per-(agent, operation) stake bets: locking on
// participation, reward registration on execution, refunds on rotation,
// inactivity tracking and timeout pruning.
package bets

import (
	"errors"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/timer/mockable"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/staking"
	"github.com/photonlabs/hub/wire"
)

var (
	ErrProtocolPaused    = errors.New("protocol is paused")
	ErrBetTypeMismatch   = errors.New("operation already carries the other bet type")
	ErrAgentNotFound     = errors.New("transmitter has no agent")
	ErrNoBet             = errors.New("no open bet")
	ErrTimeoutNotElapsed = errors.New("bet timeout has not elapsed")
)

type BetType uint8

const (
	Msg BetType = iota
	Data
)

// Bet is the stake an agent has locked behind one operation.
type Bet struct {
	Amount    uint64
	Timestamp time.Time
}

// opBook is the per-operation betting state. curTransmitters is the
// transmitter set snapshotted when the first bet lands; winners are struck
// from it on release and whoever remains accrues inactivity.
type opBook struct {
	betType         BetType
	firstBet        common.Address
	curTransmitters []common.Address
	processedAt     time.Time
}

// StakeLocker is the slice of the staking ledger the book drives.
type StakeLocker interface {
	LockAgentStake(agent common.Address, amount uint64) error
	UnlockAgentStake(agent common.Address, amount uint64) error
	ConfiscateLocked(agent common.Address, amount uint64) error
	Slash(agent common.Address, amount uint64) error
	CreditSystemFee(amount uint64)
}

// ProtocolView is the slice of the protocol registry the book consults.
type ProtocolView interface {
	IsPaused(protocolID common.Hash) bool
	IsManualTransmitter(protocolID common.Hash, transmitter common.Address) bool
	BetAmount(protocolID common.Hash, data bool) uint64
	RewardAmount(protocolID common.Hash, data, first bool) uint64
	MinPersonalAmount(protocolID common.Hash) uint64
	DeduceFee(protocolID common.Hash, amount uint64) bool
}

// AgentResolver maps transmitters back to their agents.
type AgentResolver interface {
	AgentByTransmitter(transmitter common.Address) (common.Address, bool)
}

// TransmitterRemover evicts a slashed transmitter from a protocol.
type TransmitterRemover interface {
	RemoveTransmitter(protocolID common.Hash, transmitter common.Address) error
}

type agentStats struct {
	placed uint64
	won    uint64
}

type Book struct {
	log log.Logger
	cfg *config.Global
	clk *mockable.Clock

	stakes    StakeLocker
	protocols ProtocolView
	agents    AgentResolver
	remover   TransmitterRemover

	// bets[agent][opHash]
	bets  map[common.Address]map[common.Hash]*Bet
	books map[common.Hash]*opBook
	stats map[common.Address]*agentStats

	inactivity map[common.Address]uint64

	// pendingRewards accumulates this round's (agent, reward) list in
	// first-reward order.
	pendingRewards []staking.AgentReward
	rewardIndex    map[common.Address]int
}

func NewBook(logger log.Logger, cfg *config.Global, clk *mockable.Clock) *Book {
	return &Book{
		log:         logger,
		cfg:         cfg,
		clk:         clk,
		bets:        make(map[common.Address]map[common.Hash]*Bet),
		books:       make(map[common.Hash]*opBook),
		stats:       make(map[common.Address]*agentStats),
		inactivity:  make(map[common.Address]uint64),
		rewardIndex: make(map[common.Address]int),
	}
}

// SetCollaborators wires the book's handles once.
func (b *Book) SetCollaborators(stakes StakeLocker, protocols ProtocolView, agents AgentResolver, remover TransmitterRemover) {
	if b.stakes == nil {
		b.stakes = stakes
		b.protocols = protocols
		b.agents = agents
		b.remover = remover
	}
}

// CurrentTransmitters supplies the snapshot a first bet records.
type CurrentTransmitters func(protocolID common.Hash) []common.Address

// PlaceBet locks the protocol's bet amount of [transmitter]'s agent stake
// behind [opHash]. Manual transmitters participate without stake movement.
func (b *Book) PlaceBet(protocolID common.Hash, transmitter common.Address, betType BetType, opHash common.Hash, current CurrentTransmitters) error {
	if b.protocols.IsPaused(protocolID) {
		return ErrProtocolPaused
	}
	book, ok := b.books[opHash]
	if !ok {
		book = &opBook{
			betType:         betType,
			firstBet:        transmitter,
			curTransmitters: current(protocolID),
		}
		b.books[opHash] = book
	} else if book.betType != betType {
		return ErrBetTypeMismatch
	}

	if b.protocols.IsManualTransmitter(protocolID, transmitter) {
		return nil
	}
	agent, ok := b.agents.AgentByTransmitter(transmitter)
	if !ok {
		return ErrAgentNotFound
	}
	amount := b.protocols.BetAmount(protocolID, betType == Data)
	agentBets, ok := b.bets[agent]
	if !ok {
		agentBets = make(map[common.Hash]*Bet)
		b.bets[agent] = agentBets
	}
	bet, ok := agentBets[opHash]
	if !ok {
		bet = &Bet{Timestamp: b.clk.Time()}
		agentBets[opHash] = bet
	}
	bet.Amount += amount
	b.stat(agent).placed++
	return b.stakes.LockAgentStake(agent, amount)
}

func (b *Book) stat(agent common.Address) *agentStats {
	s, ok := b.stats[agent]
	if !ok {
		s = &agentStats{}
		b.stats[agent] = s
	}
	return s
}

func (b *Book) registerReward(agent common.Address, amount uint64) {
	if i, ok := b.rewardIndex[agent]; ok {
		b.pendingRewards[i].Amount += amount
		return
	}
	b.rewardIndex[agent] = len(b.pendingRewards)
	b.pendingRewards = append(b.pendingRewards, staking.AgentReward{Agent: agent, Amount: amount})
}

// TakeRewards drains the round's accumulated reward list for distribution.
func (b *Book) TakeRewards() []staking.AgentReward {
	rewards := b.pendingRewards
	b.pendingRewards = nil
	b.rewardIndex = make(map[common.Address]int)
	return rewards
}

// ReleaseBetsAndReward settles [opHash]: winners get their bets unlocked and
// a reward registered if the protocol balance covers it; transmitters left in
// the first-bet snapshot accrue inactivity and are slashed at the border.
func (b *Book) ReleaseBetsAndReward(protocolID common.Hash, winners []common.Address, opHash common.Hash) error {
	book, ok := b.books[opHash]
	if !ok {
		return nil
	}
	for _, winner := range winners {
		if b.protocols.IsManualTransmitter(protocolID, winner) {
			continue
		}
		agent, ok := b.agents.AgentByTransmitter(winner)
		if !ok {
			continue
		}
		bet := b.bets[agent][opHash]
		if bet == nil || bet.Amount == 0 {
			continue
		}
		reward := b.protocols.RewardAmount(protocolID, book.betType == Data, winner == book.firstBet)
		if b.protocols.DeduceFee(protocolID, reward) {
			b.registerReward(agent, reward)
			b.stat(agent).won++
		}
		if err := b.stakes.UnlockAgentStake(agent, bet.Amount); err != nil {
			return err
		}
		bet.Amount = 0
		b.inactivity[winner] = 0
		b.strike(book, winner)
	}
	book.processedAt = b.clk.Time()

	for _, transmitter := range book.curTransmitters {
		if transmitter == (common.Address{}) || b.protocols.IsManualTransmitter(protocolID, transmitter) {
			continue
		}
		b.inactivity[transmitter]++
		if b.inactivity[transmitter] < b.cfg.SlashingBorder {
			continue
		}
		b.inactivity[transmitter] = 0
		agent, ok := b.agents.AgentByTransmitter(transmitter)
		if !ok {
			continue
		}
		if err := b.stakes.Slash(agent, b.protocols.MinPersonalAmount(protocolID)); err != nil {
			return err
		}
		if err := b.remover.RemoveTransmitter(protocolID, transmitter); err != nil {
			return err
		}
	}

	if protocolID != wire.GovProtocolID {
		if fee := b.cfg.ProtocolOperationFee; fee > 0 && b.protocols.DeduceFee(protocolID, fee) {
			b.stakes.CreditSystemFee(fee)
		}
	}
	return nil
}

// strike zeroes the winner's slot in the snapshot; slots are kept so the
// inactivity walk stays aligned with the original set.
func (b *Book) strike(book *opBook, transmitter common.Address) {
	for i, tr := range book.curTransmitters {
		if tr == transmitter {
			book.curTransmitters[i] = common.Address{}
			return
		}
	}
}

// RefundBet unlocks a transmitter's bet without reward. Called when a round
// turn evicts the transmitter from the allowed set.
func (b *Book) RefundBet(protocolID common.Hash, opHash common.Hash, transmitter common.Address) error {
	if b.protocols.IsManualTransmitter(protocolID, transmitter) {
		return nil
	}
	agent, ok := b.agents.AgentByTransmitter(transmitter)
	if !ok {
		return nil
	}
	bet := b.bets[agent][opHash]
	if bet == nil || bet.Amount == 0 {
		return nil
	}
	amount := bet.Amount
	bet.Amount = 0
	return b.stakes.UnlockAgentStake(agent, amount)
}

// PruneBet confiscates a bet that sat open past the bet timeout.
func (b *Book) PruneBet(agent common.Address, opHash common.Hash) error {
	bet := b.bets[agent][opHash]
	if bet == nil || bet.Amount == 0 {
		return ErrNoBet
	}
	if b.clk.Time().Sub(bet.Timestamp) < b.cfg.BetTimeout {
		return ErrTimeoutNotElapsed
	}
	amount := bet.Amount
	bet.Amount = 0
	b.log.Info("stale bet pruned",
		log.Stringer("agent", agent),
		log.Stringer("opHash", opHash),
		log.Uint64("amount", amount),
	)
	return b.stakes.ConfiscateLocked(agent, amount)
}

// BetOf returns the open bet amount for (agent, opHash).
func (b *Book) BetOf(agent common.Address, opHash common.Hash) uint64 {
	if bet := b.bets[agent][opHash]; bet != nil {
		return bet.Amount
	}
	return 0
}

// Inactivity returns a transmitter's consecutive-miss counter.
func (b *Book) Inactivity(transmitter common.Address) uint64 {
	return b.inactivity[transmitter]
}

// ProcessedAt returns when [opHash] was last settled.
func (b *Book) ProcessedAt(opHash common.Hash) (time.Time, bool) {
	book, ok := b.books[opHash]
	if !ok || book.processedAt.IsZero() {
		return time.Time{}, false
	}
	return book.processedAt, true
}
