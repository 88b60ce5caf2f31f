// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stream implements data streaming consensus: per-key vote
// collection from transmitters, deterministic finalization through a
// pluggable processing library, and merkle-root snapshotting over the
// finalized keys.
package stream

import (
	"errors"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/timer/mockable"
	"github.com/luxfi/utils/wrappers"

	"github.com/photonlabs/hub/bets"
	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/hashing"
)

var (
	ErrSpotterNotFound                = errors.New("stream data spotter not found")
	ErrAssetNotFound                  = errors.New("no votes for data key")
	ErrTransmitterIsNotAllowed        = errors.New("transmitter is not allowed")
	ErrNotEnoughTimeHasPassed         = errors.New("minimum finalization interval has not passed")
	ErrNotEnoughTransmittersHaveVoted = errors.New("not enough transmitters have voted")
	ErrFinalizationRejected           = errors.New("processing lib rejected the votes")
	ErrInvalidConsensusRate           = errors.New("consensus rate out of range")
)

// ProcessingLib turns a vote set into a finalized datum and the list of
// transmitters whose votes won.
type ProcessingLib interface {
	Finalize(dataKey common.Hash, votes [][]byte, agents []common.Address) (ok bool, finalized []byte, winners []common.Address)
}

// BetBook is the slice of the bet book data votes bet into.
type BetBook interface {
	PlaceBet(protocolID common.Hash, transmitter common.Address, betType bets.BetType, opHash common.Hash, current bets.CurrentTransmitters) error
	ReleaseBetsAndReward(protocolID common.Hash, winners []common.Address, opHash common.Hash) error
}

// TransmitterSource is the slice of the operation registry consulted for the
// allowed transmitter set.
type TransmitterSource interface {
	CurrentTransmitters(protocolID common.Hash) []common.Address
	IsAllowedTransmitter(protocolID common.Hash, transmitter common.Address) bool
}

type agentVote struct {
	value     []byte
	timestamp time.Time
}

// asset is the per-(source, key) voting window.
type asset struct {
	acceptedValue      []byte
	currentRoundOpHash common.Hash
	updateTimestamp    time.Time
	nVotes             uint64
	votes              map[common.Address]*agentVote
	participants       set.Set[common.Address]
}

type spotterKey struct {
	protocolID common.Hash
	sourceID   common.Hash
}

// spotter is the per-(protocol, source) consensus configuration and state.
type spotter struct {
	consensusRate           uint64
	minFinalizationInterval time.Duration

	// pended values applied at the next round turn
	pendedConsensusRate uint64
	pendedInterval      time.Duration
	hasPended           bool

	assets map[common.Hash]*asset
}

type Consensus struct {
	log        log.Logger
	clk        *mockable.Clock
	sink       events.Sink
	processing ProcessingLib

	book         BetBook
	transmitters TransmitterSource
	master       *MasterSpotter

	spotters map[spotterKey]*spotter
}

func NewConsensus(logger log.Logger, clk *mockable.Clock, processing ProcessingLib, master *MasterSpotter, sink events.Sink) *Consensus {
	return &Consensus{
		log:        logger,
		clk:        clk,
		sink:       sink,
		processing: processing,
		master:     master,
		spotters:   make(map[spotterKey]*spotter),
	}
}

// SetCollaborators wires the consensus handles once.
func (c *Consensus) SetCollaborators(book BetBook, transmitters TransmitterSource) {
	if c.book == nil {
		c.book = book
		c.transmitters = transmitters
	}
}

// CreateSpotter opens a voting lane for (protocolID, sourceID).
func (c *Consensus) CreateSpotter(protocolID, sourceID common.Hash, consensusRate uint64, minInterval time.Duration) error {
	if consensusRate <= 5500 || consensusRate > config.RateDenominator {
		return ErrInvalidConsensusRate
	}
	key := spotterKey{protocolID: protocolID, sourceID: sourceID}
	if _, ok := c.spotters[key]; ok {
		return nil
	}
	c.spotters[key] = &spotter{
		consensusRate:           consensusRate,
		minFinalizationInterval: minInterval,
		assets:                  make(map[common.Hash]*asset),
	}
	c.sink.Emit(events.NewStreamDataSpotter{ProtocolID: protocolID, SourceID: sourceID})
	return nil
}

// SetConsensusRate pends a new consensus rate, applied at the next round
// turn together with any pended interval change.
func (c *Consensus) SetConsensusRate(protocolID, sourceID common.Hash, rate uint64, minInterval time.Duration) error {
	if rate <= 5500 || rate > config.RateDenominator {
		return ErrInvalidConsensusRate
	}
	s, ok := c.spotters[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return ErrSpotterNotFound
	}
	s.pendedConsensusRate = rate
	s.pendedInterval = minInterval
	s.hasPended = true
	return nil
}

// roundOpHash derives the betting key of the current voting window.
func roundOpHash(protocolID, sourceID, dataKey common.Hash, ts time.Time) common.Hash {
	p := wrappers.Packer{MaxSize: 3*common.HashLength + wrappers.LongLen}
	p.PackFixedBytes(protocolID[:])
	p.PackFixedBytes(sourceID[:])
	p.PackFixedBytes(dataKey[:])
	p.PackLong(uint64(ts.Unix()))
	return hashing.Keccak256(p.Bytes)
}

// ProposeData records one transmitter's vote for (sourceID, dataKey). A
// re-vote inside the window replaces the transmitter's value without a new
// bet.
func (c *Consensus) ProposeData(transmitter common.Address, protocolID, sourceID, dataKey common.Hash, value []byte) error {
	s, ok := c.spotters[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return ErrSpotterNotFound
	}
	if !c.transmitters.IsAllowedTransmitter(protocolID, transmitter) {
		return ErrTransmitterIsNotAllowed
	}
	now := c.clk.Time()
	a, ok := s.assets[dataKey]
	if !ok {
		a = &asset{
			updateTimestamp:    now,
			currentRoundOpHash: roundOpHash(protocolID, sourceID, dataKey, now),
			votes:              make(map[common.Address]*agentVote),
			participants:       set.NewSet[common.Address](4),
		}
		s.assets[dataKey] = a
	}
	if !a.participants.Contains(transmitter) {
		if err := c.book.PlaceBet(protocolID, transmitter, bets.Data, a.currentRoundOpHash, c.transmitters.CurrentTransmitters); err != nil {
			return err
		}
		a.participants.Add(transmitter)
		a.nVotes++
	}
	a.votes[transmitter] = &agentVote{value: value, timestamp: now}

	if c.thresholdReached(protocolID, s, a) && !now.Before(a.updateTimestamp.Add(s.minFinalizationInterval)) {
		c.sink.Emit(events.ConsensusReadyToFinalize{ProtocolID: protocolID, SourceID: sourceID, DataKey: dataKey})
	}
	return nil
}

func (c *Consensus) thresholdReached(protocolID common.Hash, s *spotter, a *asset) bool {
	total := uint64(len(c.transmitters.CurrentTransmitters(protocolID)))
	if total == 0 {
		return false
	}
	return a.nVotes*config.RateDenominator/total >= s.consensusRate
}

// FinalizeData closes the voting window for [dataKey] through the processing
// lib, releases the window's bets and pushes the datum to the master
// spotter.
func (c *Consensus) FinalizeData(protocolID, sourceID, dataKey common.Hash) error {
	s, ok := c.spotters[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return ErrSpotterNotFound
	}
	a, ok := s.assets[dataKey]
	if !ok {
		return ErrAssetNotFound
	}
	now := c.clk.Time()
	if now.Before(a.updateTimestamp.Add(s.minFinalizationInterval)) {
		return ErrNotEnoughTimeHasPassed
	}
	if !c.thresholdReached(protocolID, s, a) {
		return ErrNotEnoughTransmittersHaveVoted
	}

	// votes are presented in the current transmitter order
	var (
		agents []common.Address
		votes  [][]byte
	)
	for _, tr := range c.transmitters.CurrentTransmitters(protocolID) {
		if vote, ok := a.votes[tr]; ok {
			agents = append(agents, tr)
			votes = append(votes, vote.value)
		}
	}
	ok, finalized, winners := c.processing.Finalize(dataKey, votes, agents)
	if !ok {
		return ErrFinalizationRejected
	}

	opHash := a.currentRoundOpHash
	a.acceptedValue = finalized
	a.updateTimestamp = now
	a.nVotes = 0
	a.votes = make(map[common.Address]*agentVote)
	a.participants = set.NewSet[common.Address](4)
	a.currentRoundOpHash = roundOpHash(protocolID, sourceID, dataKey, now)

	if err := c.master.pushFinalizedData(protocolID, sourceID, FinalizedData{
		Timestamp:     now,
		FinalizedData: finalized,
		DataKey:       dataKey,
	}); err != nil {
		return err
	}
	if err := c.book.ReleaseBetsAndReward(protocolID, winners, opHash); err != nil {
		return err
	}
	c.sink.Emit(events.DataFinalized{ProtocolID: protocolID, SourceID: sourceID, DataKey: dataKey})
	return nil
}

// AcceptedValue returns the last finalized value for (sourceID, dataKey).
func (c *Consensus) AcceptedValue(protocolID, sourceID, dataKey common.Hash) ([]byte, bool) {
	s, ok := c.spotters[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return nil, false
	}
	a, ok := s.assets[dataKey]
	if !ok || a.acceptedValue == nil {
		return nil, false
	}
	return a.acceptedValue, true
}

// TurnRound applies pended consensus-rate and interval changes.
func (c *Consensus) TurnRound() {
	for _, s := range c.spotters {
		if !s.hasPended {
			continue
		}
		s.consensusRate = s.pendedConsensusRate
		s.minFinalizationInterval = s.pendedInterval
		s.hasPended = false
	}
}
