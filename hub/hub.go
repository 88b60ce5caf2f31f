// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hub wires the core components together and exposes the external
// entry points. Every entry point runs under one lock, start to finish, so
// transactions are strictly ordered and atomic with respect to each other.
package hub

import (
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/timer/mockable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/photonlabs/hub/auth"
	"github.com/photonlabs/hub/bets"
	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/endpoint"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/hashing"
	"github.com/photonlabs/hub/operations"
	"github.com/photonlabs/hub/protocols"
	"github.com/photonlabs/hub/rounds"
	"github.com/photonlabs/hub/staking"
	"github.com/photonlabs/hub/stream"
	"github.com/photonlabs/hub/token"
	"github.com/photonlabs/hub/wire"
)

// Config carries everything a hub needs at construction.
type Config struct {
	Log          log.Logger
	Global       *config.Global
	Tokens       token.Ledger
	DB           database.Database
	Registerer   prometheus.Registerer
	Sink         events.Sink
	Clock        *mockable.Clock
	Transport    endpoint.Transport
	Processing   stream.ProcessingLib
	LocalChainID uint256.Int

	// Roles seeds the authority table; it is sealed inside New.
	Roles map[auth.Role][]common.Address
}

type Hub struct {
	mu sync.Mutex

	log  log.Logger
	cfg  *config.Global
	auth *auth.Table
	clk  *mockable.Clock
	sink events.Sink

	height uint64

	Stakes    *staking.Ledger
	Book      *bets.Book
	Protocols *protocols.Registry
	Agents    *protocols.Directory
	Ops       *operations.Registry
	Emitter   *endpoint.Emitter
	Streams   *stream.Consensus
	Master    *stream.MasterSpotter
	Rounds    *rounds.Coordinator
}

// New builds and wires the hub. Cross-component handles are installed
// exactly once; the authority table is sealed before New returns.
func New(cfg Config) (*Hub, error) {
	h := &Hub{
		log:  cfg.Log,
		cfg:  cfg.Global,
		clk:  cfg.Clock,
		sink: cfg.Sink,
		auth: auth.NewTable(),
	}
	for role, holders := range cfg.Roles {
		for _, holder := range holders {
			if err := h.auth.Grant(role, holder); err != nil {
				return nil, err
			}
		}
	}
	h.auth.Seal()

	h.Stakes = staking.NewLedger(cfg.Log, cfg.Global, cfg.Tokens, cfg.Sink)
	h.Protocols = protocols.NewRegistry(cfg.Log, cfg.Global, cfg.Tokens, cfg.Sink)
	h.Agents = protocols.NewDirectory(cfg.Log, cfg.Global, h.Protocols)
	h.Book = bets.NewBook(cfg.Log, cfg.Global, cfg.Clock)
	h.Master = stream.NewMasterSpotter(cfg.Log, cfg.DB, cfg.Sink)
	h.Streams = stream.NewConsensus(cfg.Log, cfg.Clock, cfg.Processing, h.Master, cfg.Sink)
	h.Emitter = endpoint.NewEmitter(cfg.Log, cfg.Transport, h, cfg.LocalChainID)

	ops, err := operations.NewRegistry(cfg.Log, h, h.Stakes, cfg.DB, cfg.Registerer, cfg.Sink)
	if err != nil {
		return nil, err
	}
	h.Ops = ops

	h.Stakes.SetCollaborators(h.Protocols, h.Agents)
	h.Protocols.SetCollaborators(h.Emitter, h.Stakes, h.Ops)
	h.Agents.SetCollaborators(h.Stakes, h.Ops)
	h.Book.SetCollaborators(h.Stakes, h.Protocols, h.Agents, h.Ops)
	h.Ops.SetCollaborators(h.Book, h.Protocols)
	h.Streams.SetCollaborators(h.Book, h.Ops)
	h.Emitter.SetCollaborators(h.Protocols)

	h.Rounds = rounds.NewCoordinator(cfg.Log, cfg.Global, cfg.Clock, h.Stakes, h.Book, h.Protocols, h.Ops, h.Streams)
	return h, nil
}

// Height implements the external ordering height consumed by the approval
// grace window and outbound operations.
func (h *Hub) Height() uint64 {
	return h.height
}

// AdvanceHeight moves the external ordering forward; the host calls it at
// its block or batch boundaries.
func (h *Hub) AdvanceHeight() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.height++
}

// Operation pipeline

func (h *Hub) ProposeOperation(caller common.Address, opData *wire.OperationData, sig hashing.Signature) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Ops.ProposeOperation(caller, opData, sig)
}

func (h *Hub) ApproveOperationExecuting(watcher common.Address, opHash common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Ops.ApproveOperationExecuting(watcher, opHash)
}

// Rounds

func (h *Hub) TurnRound(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.RoundTrigger, caller); err != nil {
		return err
	}
	return h.Rounds.TurnRound()
}

// Staking

func (h *Hub) Delegate(caller, agent common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.Delegate(caller, agent, amount)
}

func (h *Hub) WithdrawDelegation(caller, agent common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.WithdrawDelegation(caller, agent, amount)
}

func (h *Hub) Redelegate(caller, from, to common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.Redelegate(caller, from, to, amount)
}

func (h *Hub) ClaimRewards(caller, agent common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.ClaimRewards(caller, agent)
}

func (h *Hub) RegisterAgent(caller, agent common.Address, fee uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Approver, caller); err != nil {
		return err
	}
	return h.Stakes.RegisterAgent(agent, fee)
}

func (h *Hub) BanAgent(caller, agent common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Approver, caller); err != nil {
		return err
	}
	return h.Agents.BanAgent(agent)
}

func (h *Hub) DepositPersonalStake(caller common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.DepositPersonalStake(caller, amount)
}

func (h *Hub) RequestWithdrawPersonalStake(caller common.Address, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.RequestWithdrawPersonalStake(caller, amount)
}

func (h *Hub) CancelWithdrawPersonalStake(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.CancelWithdrawPersonalStake(caller)
}

func (h *Hub) WithdrawPersonalStake(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.WithdrawPersonalStake(caller)
}

func (h *Hub) ClaimAgentReward(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.ClaimAgentReward(caller)
}

func (h *Hub) SetAgentFee(caller common.Address, fee uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.SetFee(caller, fee)
}

func (h *Hub) SetAgentPaused(caller common.Address, paused bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.SetPaused(caller, paused)
}

func (h *Hub) SetRewardCollector(caller, agent, collector common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Stakes.SetRewardCollector(caller, agent, collector)
	return nil
}

// Agent directory

func (h *Hub) DeclareProtocolSupport(caller common.Address, protocolID common.Hash, transmitter common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Agents.DeclareProtocolSupport(caller, protocolID, transmitter)
}

func (h *Hub) RevokeProtocolSupport(caller common.Address, protocolID common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Agents.RevokeProtocolSupport(caller, protocolID)
}

// Protocol registry

func (h *Hub) RegisterProtocol(caller common.Address, protocolID common.Hash, owner common.Address, params protocols.Params, manualTransmitters []common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.RegisterProtocol(caller, protocolID, owner, params, manualTransmitters)
}

func (h *Hub) SetProtocolParams(caller common.Address, protocolID common.Hash, params protocols.Params) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.SetProtocolParams(caller, protocolID, params)
}

func (h *Hub) SetManualTransmitters(caller common.Address, protocolID common.Hash, transmitters []common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.SetManualTransmitters(caller, protocolID, transmitters)
}

func (h *Hub) TransferProtocolOwnership(caller common.Address, protocolID common.Hash, newOwner common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.TransferOwnership(caller, protocolID, newOwner)
}

func (h *Hub) SetProtocolActive(caller common.Address, protocolID common.Hash, active bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.SetActive(caller, protocolID, active)
}

func (h *Hub) AddProtocolBalance(caller common.Address, protocolID common.Hash, amount uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.AddBalance(caller, protocolID, amount)
}

func (h *Hub) WithdrawUnlockedBalance(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.WithdrawUnlocked(caller)
}

func (h *Hub) AddAllowedProtocolAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.AddAllowedProtocolAddress(caller, protocolID, chainID, addr)
}

func (h *Hub) RemoveAllowedProtocolAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.RemoveAllowedProtocolAddress(caller, protocolID, chainID, addr)
}

func (h *Hub) AddAllowedProposerAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.AddAllowedProposerAddress(caller, protocolID, chainID, addr)
}

func (h *Hub) RemoveAllowedProposerAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.RemoveAllowedProposerAddress(caller, protocolID, chainID, addr)
}

func (h *Hub) AddExecutor(caller common.Address, protocolID common.Hash, chainID uint256.Int, executor []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.AddExecutor(caller, protocolID, chainID, executor)
}

func (h *Hub) RemoveExecutor(caller common.Address, protocolID common.Hash, chainID uint256.Int, executor []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Protocols.RemoveExecutor(caller, protocolID, chainID, executor)
}

func (h *Hub) HandleAddAllowedProtocol(caller common.Address, protocolID common.Hash, chainID uint256.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Endpoint, caller); err != nil {
		return err
	}
	return h.Protocols.HandleAddAllowedProtocol(protocolID, chainID)
}

// Bets

func (h *Hub) PruneBet(caller, agent common.Address, opHash common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Pruner, caller); err != nil {
		return err
	}
	return h.Book.PruneBet(agent, opHash)
}

// Streams

func (h *Hub) CreateSpotter(caller common.Address, protocolID, sourceID common.Hash, consensusRate uint64, minInterval time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Protocols.Owner(protocolID) != caller {
		return protocols.ErrIsNotOwner
	}
	return h.Streams.CreateSpotter(protocolID, sourceID, consensusRate, minInterval)
}

func (h *Hub) SetStreamConsensusRate(caller common.Address, protocolID, sourceID common.Hash, rate uint64, minInterval time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Protocols.Owner(protocolID) != caller {
		return protocols.ErrIsNotOwner
	}
	return h.Streams.SetConsensusRate(protocolID, sourceID, rate, minInterval)
}

func (h *Hub) SetAllowedStreamKeys(caller common.Address, protocolID, sourceID common.Hash, keys []common.Hash, onlyAllowedKeys bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Protocols.Owner(protocolID) != caller {
		return protocols.ErrIsNotOwner
	}
	h.Master.SetAllowedKeys(protocolID, sourceID, keys, onlyAllowedKeys)
	return nil
}

func (h *Hub) ProposeData(caller common.Address, protocolID, sourceID, dataKey common.Hash, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Streams.ProposeData(caller, protocolID, sourceID, dataKey, value)
}

func (h *Hub) FinalizeData(caller common.Address, protocolID, sourceID, dataKey common.Hash) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Approver, caller); err != nil {
		return err
	}
	return h.Streams.FinalizeData(protocolID, sourceID, dataKey)
}

func (h *Hub) RecalculateMerkleRoot(caller common.Address, protocolID, sourceID common.Hash) (common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Approver, caller); err != nil {
		return common.Hash{}, err
	}
	return h.Master.RecalculateMerkleRoot(protocolID, sourceID)
}

// Admin

func (h *Hub) SetWatchersConsensusRate(caller common.Address, rate uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Admin, caller); err != nil {
		return err
	}
	return h.Ops.SetWatchersConsensusRate(rate)
}

func (h *Hub) ApproveDeveloper(caller, developer common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Admin, caller); err != nil {
		return err
	}
	h.Protocols.ApproveDeveloper(developer)
	return nil
}

func (h *Hub) SetGovAddress(caller common.Address, chainID uint256.Int, addr []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Admin, caller); err != nil {
		return err
	}
	return h.Protocols.SetGovAddress(chainID, addr)
}

func (h *Hub) SetProtocolPause(caller common.Address, protocolID common.Hash, paused bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.auth.Require(auth.Admin, caller); err != nil {
		return err
	}
	return h.Protocols.SetPaused(protocolID, paused)
}

func (h *Hub) WithdrawSystemFee(caller common.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stakes.WithdrawSystemFee(caller)
}
