// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the typed events the hub emits and the sinks that
// consume them.
package events

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

type Event interface {
	Name() string
}

type Sink interface {
	Emit(Event)
}

// LogSink renders events through a structured logger.
type LogSink struct {
	Log log.Logger
}

func (s LogSink) Emit(e Event) {
	s.Log.Info("event",
		log.String("name", e.Name()),
		log.Reflect("payload", e),
	)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(Event) {}

// Recorder collects events for assertions in tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// Operation lifecycle

type NewOperation struct {
	OpHash     common.Hash
	ProtocolID common.Hash
}

func (NewOperation) Name() string { return "NewOperation" }

type NewProof struct {
	OpHash      common.Hash
	Transmitter common.Address
}

func (NewProof) Name() string { return "NewProof" }

type ProposalApproved struct {
	OpHash      common.Hash
	ProofsCount uint64
}

func (ProposalApproved) Name() string { return "ProposalApproved" }

type ProposalExecuted struct {
	OpHash common.Hash
}

func (ProposalExecuted) Name() string { return "ProposalExecuted" }

// Protocol governance

type AddAllowedProtocol struct {
	ProtocolID      common.Hash
	MaxTransmitters uint64
}

func (AddAllowedProtocol) Name() string { return "AddAllowedProtocol" }

type SetProtocolPause struct {
	ProtocolID common.Hash
	Paused     bool
}

func (SetProtocolPause) Name() string { return "SetProtocolPause" }

type AddAllowedProtocolAddress struct {
	ProtocolID   common.Hash
	ChainID      string
	ProtocolAddr []byte
}

func (AddAllowedProtocolAddress) Name() string { return "AddAllowedProtocolAddress" }

type RemoveAllowedProtocolAddress struct {
	ProtocolID   common.Hash
	ChainID      string
	ProtocolAddr []byte
}

func (RemoveAllowedProtocolAddress) Name() string { return "RemoveAllowedProtocolAddress" }

type AddAllowedProposerAddress struct {
	ProtocolID common.Hash
	ChainID    string
	Proposer   []byte
}

func (AddAllowedProposerAddress) Name() string { return "AddAllowedProposerAddress" }

type RemoveAllowedProposerAddress struct {
	ProtocolID common.Hash
	ChainID    string
	Proposer   []byte
}

func (RemoveAllowedProposerAddress) Name() string { return "RemoveAllowedProposerAddress" }

type UpdateTransmitters struct {
	ProtocolID common.Hash
	ToAdd      []common.Address
	ToRemove   []common.Address
}

func (UpdateTransmitters) Name() string { return "UpdateTransmitters" }

type RemoveTransmitter struct {
	ProtocolID  common.Hash
	Transmitter common.Address
}

func (RemoveTransmitter) Name() string { return "RemoveTransmitter" }

type AddExecutor struct {
	ProtocolID common.Hash
	ChainID    string
	Executor   []byte
}

func (AddExecutor) Name() string { return "AddExecutor" }

type RemoveExecutor struct {
	ProtocolID common.Hash
	ChainID    string
	Executor   []byte
}

func (RemoveExecutor) Name() string { return "RemoveExecutor" }

type SetConsensusTargetRate struct {
	ProtocolID common.Hash
	Rate       uint64
}

func (SetConsensusTargetRate) Name() string { return "SetConsensusTargetRate" }

// Staking

type Delegate struct {
	Delegator common.Address
	Agent     common.Address
	Amount    uint64
}

func (Delegate) Name() string { return "Delegate" }

type Withdraw struct {
	Delegator common.Address
	Agent     common.Address
	Amount    uint64
}

func (Withdraw) Name() string { return "Withdraw" }

type Redelegate struct {
	Delegator common.Address
	From      common.Address
	To        common.Address
	Amount    uint64
}

func (Redelegate) Name() string { return "Redelegate" }

type RewardClaimed struct {
	Delegator common.Address
	Agent     common.Address
	Amount    uint64
}

func (RewardClaimed) Name() string { return "RewardClaimed" }

type AgentRewardClaimed struct {
	Agent  common.Address
	Amount uint64
}

func (AgentRewardClaimed) Name() string { return "AgentRewardClaimed" }

type UpdateFee struct {
	Agent common.Address
	Fee   uint64
}

func (UpdateFee) Name() string { return "UpdateFee" }

type DepositPersonalStake struct {
	Agent  common.Address
	Amount uint64
}

func (DepositPersonalStake) Name() string { return "DepositPersonalStake" }

type RequestWithdrawPersonalStake struct {
	Agent  common.Address
	Amount uint64
}

func (RequestWithdrawPersonalStake) Name() string { return "RequestWithdrawPersonalStake" }

type CancelWithdrawPersonalStake struct {
	Agent  common.Address
	Amount uint64
}

func (CancelWithdrawPersonalStake) Name() string { return "CancelWithdrawPersonalStake" }

type WithdrawPersonalStake struct {
	Agent  common.Address
	Amount uint64
}

func (WithdrawPersonalStake) Name() string { return "WithdrawPersonalStake" }

type Slashed struct {
	Agent  common.Address
	Amount uint64
}

func (Slashed) Name() string { return "Slashed" }

// Data streaming

type NewStreamDataSpotter struct {
	ProtocolID common.Hash
	SourceID   common.Hash
}

func (NewStreamDataSpotter) Name() string { return "NewStreamDataSpotter" }

type DataFinalized struct {
	ProtocolID common.Hash
	SourceID   common.Hash
	DataKey    common.Hash
}

func (DataFinalized) Name() string { return "DataFinalized" }

type NewMerkleRoot struct {
	ProtocolID common.Hash
	SourceID   common.Hash
	Root       common.Hash
}

func (NewMerkleRoot) Name() string { return "NewMerkleRoot" }

type ConsensusReadyToFinalize struct {
	ProtocolID common.Hash
	SourceID   common.Hash
	DataKey    common.Hash
}

func (ConsensusReadyToFinalize) Name() string { return "ConsensusReadyToFinalize" }
