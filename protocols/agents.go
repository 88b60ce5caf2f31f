// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/wire"
)

var (
	ErrZeroTransmitter        = errors.New("zero transmitter address")
	ErrSupportAlreadyDeclared = errors.New("support already declared")
	ErrSupportNotDeclared     = errors.New("support not declared")
	ErrTransmitterTaken       = errors.New("transmitter already mapped to an agent")
	ErrTransmitterCapReached  = errors.New("personal stake supports no more transmitters")
)

// StakeView is the slice of the staking ledger the directory reads and, on a
// ban, strikes.
type StakeView interface {
	IsApproved(agent common.Address) bool
	PersonalStake(agent common.Address) uint64
	SetApproved(agent common.Address, approved bool) error
	SlashAll(agent common.Address) error
}

// TransmitterRemover evicts a transmitter from a protocol's allowed set.
type TransmitterRemover interface {
	RemoveTransmitter(protocolID common.Hash, transmitter common.Address) error
}

// Directory maps agents to the transmitters they operate, per protocol. One
// transmitter serves exactly one agent; the number of transmitters an agent
// may field is capped by its personal stake.
type Directory struct {
	log      log.Logger
	cfg      *config.Global
	registry *Registry

	stakes  StakeView
	remover TransmitterRemover

	// transmitters[agent][protocol] -> transmitter
	transmitters       map[common.Address]map[common.Hash]common.Address
	agentByTransmitter map[common.Address]common.Address
	transmitterCount   map[common.Address]uint64
}

func NewDirectory(logger log.Logger, cfg *config.Global, registry *Registry) *Directory {
	return &Directory{
		log:                logger,
		cfg:                cfg,
		registry:           registry,
		transmitters:       make(map[common.Address]map[common.Hash]common.Address),
		agentByTransmitter: make(map[common.Address]common.Address),
		transmitterCount:   make(map[common.Address]uint64),
	}
}

// SetCollaborators wires the directory's staking and operation handles once.
func (d *Directory) SetCollaborators(stakes StakeView, remover TransmitterRemover) {
	if d.stakes == nil {
		d.stakes = stakes
		d.remover = remover
	}
}

// DeclareProtocolSupport registers [transmitter] as [agentAddr]'s worker for
// the protocol.
func (d *Directory) DeclareProtocolSupport(agentAddr common.Address, protocolID common.Hash, transmitter common.Address) error {
	if transmitter == (common.Address{}) {
		return ErrZeroTransmitter
	}
	if protocolID == (common.Hash{}) || protocolID == wire.GovProtocolID || !d.registry.Exists(protocolID) {
		return ErrProtocolIsNotAllowed
	}
	if !d.stakes.IsApproved(agentAddr) {
		return ErrProtocolIsNotAllowed
	}
	if owner, ok := d.agentByTransmitter[transmitter]; ok && owner != agentAddr {
		return ErrTransmitterTaken
	}
	byProtocol, ok := d.transmitters[agentAddr]
	if !ok {
		byProtocol = make(map[common.Hash]common.Address)
		d.transmitters[agentAddr] = byProtocol
	}
	if _, ok := byProtocol[protocolID]; ok {
		return ErrSupportAlreadyDeclared
	}
	if perTransmitter := d.cfg.AgentStakePerTransmitter; perTransmitter != 0 {
		limit := d.stakes.PersonalStake(agentAddr) / perTransmitter
		if d.transmitterCount[agentAddr] >= limit {
			return ErrTransmitterCapReached
		}
	}
	byProtocol[protocolID] = transmitter
	d.agentByTransmitter[transmitter] = agentAddr
	d.transmitterCount[agentAddr]++
	return nil
}

// RevokeProtocolSupport withdraws the agent's transmitter from the protocol.
// The transmitter is captured before the mapping is cleared so the reverse
// index is cleaned for the right key.
func (d *Directory) RevokeProtocolSupport(agentAddr common.Address, protocolID common.Hash) error {
	byProtocol, ok := d.transmitters[agentAddr]
	if !ok {
		return ErrSupportNotDeclared
	}
	transmitter, ok := byProtocol[protocolID]
	if !ok {
		return ErrSupportNotDeclared
	}
	delete(byProtocol, protocolID)
	delete(d.agentByTransmitter, transmitter)
	d.transmitterCount[agentAddr]--
	return d.remover.RemoveTransmitter(protocolID, transmitter)
}

// TransmitterFor returns the transmitter [agentAddr] declared for the
// protocol.
func (d *Directory) TransmitterFor(agentAddr common.Address, protocolID common.Hash) (common.Address, bool) {
	tr, ok := d.transmitters[agentAddr][protocolID]
	return tr, ok
}

// AgentByTransmitter resolves a transmitter back to its agent.
func (d *Directory) AgentByTransmitter(transmitter common.Address) (common.Address, bool) {
	agent, ok := d.agentByTransmitter[transmitter]
	return agent, ok
}

// BanAgent strikes the agent from the global set, forfeits its entire
// personal stake and evicts its transmitters from every protocol.
func (d *Directory) BanAgent(agentAddr common.Address) error {
	if err := d.stakes.SetApproved(agentAddr, false); err != nil {
		return err
	}
	if err := d.stakes.SlashAll(agentAddr); err != nil {
		return err
	}
	for protocolID, transmitter := range d.transmitters[agentAddr] {
		delete(d.agentByTransmitter, transmitter)
		d.transmitterCount[agentAddr]--
		if err := d.remover.RemoveTransmitter(protocolID, transmitter); err != nil {
			return err
		}
	}
	delete(d.transmitters, agentAddr)
	d.log.Info("agent banned", log.Stringer("agent", agentAddr))
	return nil
}
