// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rounds drives round advancement across the staking ledger, the
// protocol registry and the stream consensus.
package rounds

import (
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/timer/mockable"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/staking"
)

var ErrMinRoundTimeNotReached = errors.New("minimum round time has not passed")

// Stakes is the slice of the staking ledger a round turn drives.
type Stakes interface {
	DistributeRewards(rewards []staking.AgentReward) error
	TurnRound() error
	SelectTransmittersForProtocol(protocolID common.Hash) []common.Address
}

// RewardSource drains the bet book's accumulated reward list.
type RewardSource interface {
	TakeRewards() []staking.AgentReward
}

// Protocols is the slice of the protocol registry a round turn drives.
type Protocols interface {
	TurnRound() error
	ActiveProtocols() []common.Hash
}

// OperationHub applies the freshly elected transmitter sets.
type OperationHub interface {
	UpdateTransmitters(protocolID common.Hash, transmitters []common.Address) error
}

// Streams applies pended stream-consensus changes.
type Streams interface {
	TurnRound()
}

type Coordinator struct {
	log log.Logger
	cfg *config.Global
	clk *mockable.Clock

	stakes    Stakes
	rewards   RewardSource
	protocols Protocols
	ops       OperationHub
	streams   Streams

	lastRoundTimestamp int64
}

func NewCoordinator(
	logger log.Logger,
	cfg *config.Global,
	clk *mockable.Clock,
	stakes Stakes,
	rewards RewardSource,
	protocols Protocols,
	ops OperationHub,
	streams Streams,
) *Coordinator {
	return &Coordinator{
		log:                logger,
		cfg:                cfg,
		clk:                clk,
		stakes:             stakes,
		rewards:            rewards,
		protocols:          protocols,
		ops:                ops,
		streams:            streams,
		lastRoundTimestamp: clk.Time().Unix(),
	}
}

// TurnRound advances one round. The ordering is load-bearing: round-N
// rewards must be distributed on round-N snapshots before round-N+1
// snapshots are taken, and transmitter election must read the freshly
// promoted stakes.
func (c *Coordinator) TurnRound() error {
	now := c.clk.Time()
	if now.Unix()-c.lastRoundTimestamp < int64(c.cfg.MinRoundTime.Seconds()) {
		return ErrMinRoundTimeNotReached
	}
	if err := c.stakes.DistributeRewards(c.rewards.TakeRewards()); err != nil {
		return err
	}
	if err := c.protocols.TurnRound(); err != nil {
		return err
	}
	if err := c.stakes.TurnRound(); err != nil {
		return err
	}
	for _, protocolID := range c.protocols.ActiveProtocols() {
		selected := c.stakes.SelectTransmittersForProtocol(protocolID)
		if err := c.ops.UpdateTransmitters(protocolID, selected); err != nil {
			return err
		}
	}
	c.streams.TurnRound()
	c.lastRoundTimestamp = now.Unix()
	c.log.Info("round turned", log.Time("at", now))
	return nil
}
