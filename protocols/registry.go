// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocols tracks per-protocol admission state: parameters, balance,
// per-chain whitelists and the init state machine, plus the agent directory
// mapping agents to the transmitters they operate.
package protocols

import (
	"bytes"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/token"
	"github.com/photonlabs/hub/wire"
)

var (
	ErrProtocolIsNotAllowed            = errors.New("protocol is not allowed")
	ErrProtocolAlreadyExists           = errors.New("protocol already exists")
	ErrProtocolNotActive               = errors.New("protocol is not active")
	ErrProtocolPaused                  = errors.New("protocol is paused")
	ErrIsNotOwner                      = errors.New("caller is not the protocol owner")
	ErrNotApprovedDeveloper            = errors.New("caller is not an approved developer")
	ErrInvalidProtocolID               = errors.New("invalid protocol id")
	ErrZeroAddress                     = errors.New("zero address")
	ErrDuplicateTransmitter            = errors.New("duplicate transmitter")
	ErrTransmitterClaimed              = errors.New("transmitter belongs to another protocol")
	ErrInvalidConsensusRate            = errors.New("consensus target rate out of range")
	ErrTooManyTransmitters             = errors.New("max transmitters above the global cap")
	ErrManualTransmittersLimitExceeded = errors.New("manual transmitters could reach consensus alone")
	ErrNoManualTransmitters            = errors.New("protocol needs at least one manual transmitter")
	ErrProtocolIsNotInited             = errors.New("protocol is not inited")
	ErrProtocolIsNotInitedOnChain      = errors.New("protocol is not inited on chain")
	ErrLastGovExecutor                 = errors.New("cannot remove the last gov executor on a chain")
	ErrAddrTooBig                      = errors.New("address exceeds 128 bytes")
	ErrInsufficientFunds               = errors.New("insufficient protocol balance")
	ErrNoGovAddress                    = errors.New("no gov address known for chain")
)

// InitState is the per-(protocol, chain) admission state.
type InitState uint8

const (
	NotInited InitState = iota
	OnInition
	Inited
)

// Params are the owner-tunable protocol parameters. The realtime copy is
// settable any time; the active copy is promoted at round turns and is what
// consensus and betting read.
type Params struct {
	MsgBetAmount        uint64
	DataBetAmount       uint64
	MsgBetReward        uint64
	MsgBetFirstReward   uint64
	DataBetReward       uint64
	DataBetFirstReward  uint64
	ConsensusTargetRate uint64
	MinDelegateAmount   uint64
	MinPersonalAmount   uint64
	MaxTransmitters     uint64
}

type chainState struct {
	state InitState

	protocolAddrs [][]byte
	proposerAddrs [][]byte
	executors     [][]byte

	pendingProtocolAddrs [][]byte
	pendingProposerAddrs [][]byte
	pendingTransmitters  []common.Address
}

type protocol struct {
	owner    common.Address
	active   bool
	paused   bool
	realtime Params
	activeP  Params
	balance  uint64

	manualTransmitters []common.Address
	chains             map[uint256.Int]*chainState
	chainIDs           []uint256.Int
}

// GovEmitter sends a governance message toward one chain's endpoint.
type GovEmitter interface {
	Emit(chainID uint256.Int, msg wire.GovMessage) error
}

// FeePot accrues fees the registry collects.
type FeePot interface {
	CreditSystemFee(amount uint64)
}

// OperationHub is the slice of the operation registry the protocol registry
// drives at round turns.
type OperationHub interface {
	CurrentTransmitters(protocolID common.Hash) []common.Address
	UpdateTransmitters(protocolID common.Hash, transmitters []common.Address) error
}

type Registry struct {
	log    log.Logger
	cfg    *config.Global
	tokens token.Ledger
	sink   events.Sink

	emitter GovEmitter
	feePot  FeePot
	ops     OperationHub

	protocols  map[common.Hash]*protocol
	activeList []common.Hash

	// manualOwner enforces that a manual transmitter serves one protocol.
	manualOwner map[common.Address]common.Hash

	// approvedDevelopers may register protocols.
	approvedDevelopers set.Set[common.Address]

	// govAddresses maps a chain to its endpoint gov contract address.
	govAddresses map[uint256.Int][]byte

	unlockedBalances map[common.Address]uint64
}

func NewRegistry(logger log.Logger, cfg *config.Global, tokens token.Ledger, sink events.Sink) *Registry {
	return &Registry{
		log:                logger,
		cfg:                cfg,
		tokens:             tokens,
		sink:               sink,
		protocols:          make(map[common.Hash]*protocol),
		manualOwner:        make(map[common.Address]common.Hash),
		approvedDevelopers: set.NewSet[common.Address](4),
		govAddresses:       make(map[uint256.Int][]byte),
		unlockedBalances:   make(map[common.Address]uint64),
	}
}

// SetCollaborators wires the registry's outbound handles once.
func (r *Registry) SetCollaborators(emitter GovEmitter, feePot FeePot, ops OperationHub) {
	if r.emitter == nil {
		r.emitter = emitter
		r.feePot = feePot
		r.ops = ops
	}
}

func (r *Registry) ApproveDeveloper(dev common.Address) {
	r.approvedDevelopers.Add(dev)
}

func (r *Registry) SetGovAddress(chainID uint256.Int, addr []byte) error {
	if len(addr) == 0 || len(addr) > wire.AddressMaxLen {
		return ErrAddrTooBig
	}
	r.govAddresses[chainID] = addr
	return nil
}

func (r *Registry) GovAddress(chainID uint256.Int) ([]byte, bool) {
	addr, ok := r.govAddresses[chainID]
	return addr, ok
}

func (r *Registry) get(protocolID common.Hash) (*protocol, error) {
	p, ok := r.protocols[protocolID]
	if !ok {
		return nil, ErrProtocolIsNotAllowed
	}
	return p, nil
}

func (r *Registry) requireOwner(protocolID common.Hash, caller common.Address) (*protocol, error) {
	p, err := r.get(protocolID)
	if err != nil {
		return nil, err
	}
	if p.owner != caller {
		return nil, ErrIsNotOwner
	}
	return p, nil
}

// checkParams is the validity predicate enforced on registration and after
// SetProtocolParams and SetManualTransmitters.
func (r *Registry) checkParams(protocolID common.Hash, p *protocol) error {
	switch {
	case p.owner == (common.Address{}):
		return ErrZeroAddress
	case !p.active:
		return ErrProtocolNotActive
	case len(p.manualTransmitters) == 0:
		return ErrNoManualTransmitters
	case p.realtime.ConsensusTargetRate <= 5500 || p.realtime.ConsensusTargetRate > config.RateDenominator:
		return ErrInvalidConsensusRate
	case p.realtime.MaxTransmitters > r.cfg.MaxTransmittersCount:
		return ErrTooManyTransmitters
	}
	if protocolID != wire.GovProtocolID {
		// manual transmitters alone must never reach consensus
		limit := p.realtime.MaxTransmitters*(config.RateDenominator-p.realtime.ConsensusTargetRate)/config.RateDenominator + 1
		if uint64(len(p.manualTransmitters)) > limit {
			return ErrManualTransmittersLimitExceeded
		}
	}
	return nil
}

func (r *Registry) claimManuals(protocolID common.Hash, transmitters []common.Address) error {
	seen := set.NewSet[common.Address](len(transmitters))
	for _, tr := range transmitters {
		if tr == (common.Address{}) {
			return ErrZeroAddress
		}
		if seen.Contains(tr) {
			return ErrDuplicateTransmitter
		}
		seen.Add(tr)
		if owner, ok := r.manualOwner[tr]; ok && owner != protocolID {
			return ErrTransmitterClaimed
		}
	}
	for _, tr := range transmitters {
		r.manualOwner[tr] = protocolID
	}
	return nil
}

// RegisterProtocol admits a new protocol. The caller pays the register fee
// and must be an approved external developer.
func (r *Registry) RegisterProtocol(caller common.Address, protocolID common.Hash, owner common.Address, params Params, manualTransmitters []common.Address) error {
	if !r.approvedDevelopers.Contains(caller) {
		return ErrNotApprovedDeveloper
	}
	return r.register(caller, protocolID, owner, params, manualTransmitters, r.cfg.ProtocolRegisterFee)
}

// RegisterGovProtocol installs the reserved gov protocol at wiring time.
func (r *Registry) RegisterGovProtocol(owner common.Address, params Params, manualTransmitters []common.Address) error {
	return r.register(owner, wire.GovProtocolID, owner, params, manualTransmitters, 0)
}

func (r *Registry) register(payer common.Address, protocolID common.Hash, owner common.Address, params Params, manualTransmitters []common.Address, fee uint64) error {
	if protocolID == (common.Hash{}) {
		return ErrInvalidProtocolID
	}
	if _, ok := r.protocols[protocolID]; ok {
		return ErrProtocolAlreadyExists
	}
	if err := r.claimManuals(protocolID, manualTransmitters); err != nil {
		return err
	}
	p := &protocol{
		owner:              owner,
		active:             true,
		realtime:           params,
		activeP:            params,
		manualTransmitters: manualTransmitters,
		chains:             make(map[uint256.Int]*chainState),
	}
	if err := r.checkParams(protocolID, p); err != nil {
		for _, tr := range manualTransmitters {
			delete(r.manualOwner, tr)
		}
		return err
	}
	r.protocols[protocolID] = p
	r.activeList = append(r.activeList, protocolID)
	r.sink.Emit(events.AddAllowedProtocol{ProtocolID: protocolID, MaxTransmitters: params.MaxTransmitters})
	if fee == 0 {
		return nil
	}
	r.feePot.CreditSystemFee(fee)
	return r.tokens.Deposit(payer, fee)
}

// SetProtocolParams replaces the realtime parameter set for a fee taken from
// the protocol balance. The active copy changes at the next round turn.
func (r *Registry) SetProtocolParams(caller common.Address, protocolID common.Hash, params Params) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	old := p.realtime
	p.realtime = params
	if err := r.checkParams(protocolID, p); err != nil {
		p.realtime = old
		return err
	}
	fee := r.cfg.ChangeProtocolParamsFee
	if protocolID != wire.GovProtocolID && fee > 0 {
		if p.balance < fee {
			p.realtime = old
			return ErrInsufficientFunds
		}
		p.balance -= fee
		r.feePot.CreditSystemFee(fee)
	}
	return nil
}

// SetManualTransmitters atomically replaces the manual transmitter list. Each
// newly added address costs the manual-transmitter fee for non-gov protocols.
func (r *Registry) SetManualTransmitters(caller common.Address, protocolID common.Hash, transmitters []common.Address) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	if len(transmitters) == 0 {
		return ErrNoManualTransmitters
	}

	old := set.NewSet[common.Address](len(p.manualTransmitters))
	for _, tr := range p.manualTransmitters {
		old.Add(tr)
	}
	var added uint64
	for _, tr := range transmitters {
		if !old.Contains(tr) {
			added++
		}
	}
	fee := added * r.cfg.ManualTransmitterFee
	if protocolID != wire.GovProtocolID && fee > p.balance {
		return ErrInsufficientFunds
	}
	if err := r.claimManuals(protocolID, transmitters); err != nil {
		return err
	}
	for _, tr := range p.manualTransmitters {
		r.manualOwner[tr] = protocolID // keep claims for survivors
	}
	keep := set.NewSet[common.Address](len(transmitters))
	for _, tr := range transmitters {
		keep.Add(tr)
	}
	for _, tr := range p.manualTransmitters {
		if !keep.Contains(tr) {
			delete(r.manualOwner, tr)
		}
	}

	oldList := p.manualTransmitters
	p.manualTransmitters = transmitters
	if err := r.checkParams(protocolID, p); err != nil {
		p.manualTransmitters = oldList
		for _, tr := range transmitters {
			if !old.Contains(tr) {
				delete(r.manualOwner, tr)
			}
		}
		for _, tr := range oldList {
			r.manualOwner[tr] = protocolID
		}
		return err
	}
	if protocolID != wire.GovProtocolID && fee > 0 {
		p.balance -= fee
		r.feePot.CreditSystemFee(fee)
	}
	return nil
}

// TransferOwnership hands the protocol to a new owner.
func (r *Registry) TransferOwnership(caller common.Address, protocolID common.Hash, newOwner common.Address) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	p.owner = newOwner
	return nil
}

// SetActive lets the owner retire the protocol; the next round turn unwinds
// its balance and transmitters.
func (r *Registry) SetActive(caller common.Address, protocolID common.Hash, active bool) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	p.active = active
	return nil
}

// AddBalance tops up the protocol's fee balance.
func (r *Registry) AddBalance(from common.Address, protocolID common.Hash, amount uint64) error {
	p, err := r.get(protocolID)
	if err != nil {
		return err
	}
	p.balance += amount
	return r.tokens.Deposit(from, amount)
}

func (r *Registry) Balance(protocolID common.Hash) uint64 {
	if p, ok := r.protocols[protocolID]; ok {
		return p.balance
	}
	return 0
}

// WithdrawUnlocked pays out balance returned to an owner by a round turn.
func (r *Registry) WithdrawUnlocked(owner common.Address) error {
	amount := r.unlockedBalances[owner]
	if amount == 0 {
		return ErrInsufficientFunds
	}
	r.unlockedBalances[owner] = 0
	return r.tokens.Pay(owner, amount)
}

// DeduceFee burns [amount] from the protocol balance, pausing the protocol
// when the balance cannot cover it.
func (r *Registry) DeduceFee(protocolID common.Hash, amount uint64) bool {
	p, ok := r.protocols[protocolID]
	if !ok {
		return false
	}
	if p.balance > amount {
		p.balance -= amount
		return true
	}
	r.pause(protocolID, p)
	return false
}

func (r *Registry) pause(protocolID common.Hash, p *protocol) {
	if p.paused {
		return
	}
	p.paused = true
	r.sink.Emit(events.SetProtocolPause{ProtocolID: protocolID, Paused: true})
}

// SetPaused is the admin override for the pause flag.
func (r *Registry) SetPaused(protocolID common.Hash, paused bool) error {
	p, err := r.get(protocolID)
	if err != nil {
		return err
	}
	if p.paused == paused {
		return nil
	}
	p.paused = paused
	r.sink.Emit(events.SetProtocolPause{ProtocolID: protocolID, Paused: paused})
	return nil
}

func (r *Registry) IsPaused(protocolID common.Hash) bool {
	p, ok := r.protocols[protocolID]
	return ok && p.paused
}

func (r *Registry) Exists(protocolID common.Hash) bool {
	_, ok := r.protocols[protocolID]
	return ok
}

func (r *Registry) Owner(protocolID common.Hash) common.Address {
	if p, ok := r.protocols[protocolID]; ok {
		return p.owner
	}
	return common.Address{}
}

// ActiveProtocols returns the protocols in registration order.
func (r *Registry) ActiveProtocols() []common.Hash {
	out := make([]common.Hash, len(r.activeList))
	copy(out, r.activeList)
	return out
}

// Param accessors used by election, betting and consensus. All read the
// active copy.

func (r *Registry) ManualTransmitters(protocolID common.Hash) []common.Address {
	p, ok := r.protocols[protocolID]
	if !ok {
		return nil
	}
	out := make([]common.Address, len(p.manualTransmitters))
	copy(out, p.manualTransmitters)
	return out
}

func (r *Registry) IsManualTransmitter(protocolID common.Hash, transmitter common.Address) bool {
	owner, ok := r.manualOwner[transmitter]
	return ok && owner == protocolID
}

func (r *Registry) MaxTransmitters(protocolID common.Hash) uint64 {
	if p, ok := r.protocols[protocolID]; ok {
		return p.activeP.MaxTransmitters
	}
	return 0
}

func (r *Registry) MinDelegateAmount(protocolID common.Hash) uint64 {
	if p, ok := r.protocols[protocolID]; ok {
		return p.activeP.MinDelegateAmount
	}
	return 0
}

func (r *Registry) MinPersonalAmount(protocolID common.Hash) uint64 {
	if p, ok := r.protocols[protocolID]; ok {
		return p.activeP.MinPersonalAmount
	}
	return 0
}

func (r *Registry) ConsensusTargetRate(protocolID common.Hash) uint64 {
	if p, ok := r.protocols[protocolID]; ok {
		return p.activeP.ConsensusTargetRate
	}
	return 0
}

// BetAmount returns the stake a transmitter locks behind one bet.
func (r *Registry) BetAmount(protocolID common.Hash, data bool) uint64 {
	p, ok := r.protocols[protocolID]
	if !ok {
		return 0
	}
	if data {
		return p.activeP.DataBetAmount
	}
	return p.activeP.MsgBetAmount
}

// RewardAmount returns the payout for a released bet.
func (r *Registry) RewardAmount(protocolID common.Hash, data, first bool) uint64 {
	p, ok := r.protocols[protocolID]
	if !ok {
		return 0
	}
	switch {
	case data && first:
		return p.activeP.DataBetFirstReward
	case data:
		return p.activeP.DataBetReward
	case first:
		return p.activeP.MsgBetFirstReward
	default:
		return p.activeP.MsgBetReward
	}
}

// TurnRound promotes realtime parameters, propagates consensus-rate changes,
// pauses unhealthy protocols and unwinds retired ones.
func (r *Registry) TurnRound() error {
	for _, protocolID := range r.activeList {
		p := r.protocols[protocolID]

		if p.activeP.ConsensusTargetRate != p.realtime.ConsensusTargetRate {
			msg := wire.SetConsensusTargetRate{
				ProtocolID:          protocolID,
				ConsensusTargetRate: p.realtime.ConsensusTargetRate,
			}
			for _, chainID := range p.chainIDs {
				if err := r.emitter.Emit(chainID, msg); err != nil {
					return err
				}
			}
			r.sink.Emit(events.SetConsensusTargetRate{ProtocolID: protocolID, Rate: p.realtime.ConsensusTargetRate})
		}
		p.activeP = p.realtime

		if protocolID != wire.GovProtocolID && !p.paused &&
			(p.balance < r.cfg.MinProtocolBalance || !p.active) {
			r.pause(protocolID, p)
		}
		if !p.active && p.balance > 0 {
			r.unlockedBalances[p.owner] += p.balance
			p.balance = 0
		}
		if !p.active && len(r.ops.CurrentTransmitters(protocolID)) > 0 {
			if err := r.ops.UpdateTransmitters(protocolID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// chain returns the protocol's state on [chainID], creating it lazily.
func (p *protocol) chain(chainID uint256.Int) *chainState {
	cs, ok := p.chains[chainID]
	if !ok {
		cs = &chainState{}
		p.chains[chainID] = cs
	}
	return cs
}

func (r *Registry) InitState(protocolID common.Hash, chainID uint256.Int) InitState {
	p, ok := r.protocols[protocolID]
	if !ok {
		return NotInited
	}
	cs, ok := p.chains[chainID]
	if !ok {
		return NotInited
	}
	return cs.state
}

func containsAddr(list [][]byte, addr []byte) bool {
	for _, a := range list {
		if bytes.Equal(a, addr) {
			return true
		}
	}
	return false
}

func removeAddr(list [][]byte, addr []byte) [][]byte {
	out := list[:0]
	for _, a := range list {
		if !bytes.Equal(a, addr) {
			out = append(out, a)
		}
	}
	return out
}

// IsProtocolAddressAllowed reports whether an operation may target [addr] on
// [chainID] for this protocol.
func (r *Registry) IsProtocolAddressAllowed(protocolID common.Hash, chainID uint256.Int, addr []byte) bool {
	p, ok := r.protocols[protocolID]
	if !ok {
		return false
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state != Inited {
		return false
	}
	return containsAddr(cs.protocolAddrs, addr)
}

func (r *Registry) IsProposerAllowed(protocolID common.Hash, chainID uint256.Int, addr []byte) bool {
	p, ok := r.protocols[protocolID]
	if !ok {
		return false
	}
	cs, ok := p.chains[chainID]
	if !ok {
		return false
	}
	return containsAddr(cs.proposerAddrs, addr)
}

func checkOpaqueAddr(addr []byte) error {
	if len(addr) == 0 {
		return ErrZeroAddress
	}
	if len(addr) > wire.AddressMaxLen {
		return ErrAddrTooBig
	}
	return nil
}

// beginInit starts the admission handshake with [chainID]'s endpoint: the
// first whitelisted address proposes the protocol itself and any further
// addresses queue until the endpoint calls back.
func (r *Registry) beginInit(protocolID common.Hash, p *protocol, chainID uint256.Int) error {
	fee := r.cfg.InitNewChainFee
	if protocolID != wire.GovProtocolID && fee > 0 {
		if p.balance < fee {
			return ErrInsufficientFunds
		}
		p.balance -= fee
		r.feePot.CreditSystemFee(fee)
	}
	cs := p.chain(chainID)
	cs.state = OnInition
	p.chainIDs = append(p.chainIDs, chainID)
	return r.emitter.Emit(chainID, wire.AddAllowedProtocol{
		ProtocolID:          protocolID,
		ConsensusTargetRate: p.activeP.ConsensusTargetRate,
		Transmitters:        r.ops.CurrentTransmitters(protocolID),
	})
}

// AddAllowedProtocolAddress whitelists a destination address for the
// protocol on [chainID], driving the init state machine.
func (r *Registry) AddAllowedProtocolAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	if err := checkOpaqueAddr(addr); err != nil {
		return err
	}
	cs := p.chain(chainID)
	switch cs.state {
	case NotInited:
		cs.pendingProtocolAddrs = append(cs.pendingProtocolAddrs, addr)
		return r.beginInit(protocolID, p, chainID)
	case OnInition:
		cs.pendingProtocolAddrs = append(cs.pendingProtocolAddrs, addr)
		return nil
	default:
		cs.protocolAddrs = append(cs.protocolAddrs, addr)
		r.sink.Emit(events.AddAllowedProtocolAddress{ProtocolID: protocolID, ChainID: chainID.String(), ProtocolAddr: addr})
		return r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
			ProtocolID: protocolID,
			Actor:      addr,
			Role:       wire.ActorProtocolAddress,
		})
	}
}

func (r *Registry) RemoveAllowedProtocolAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state != Inited {
		return ErrProtocolIsNotInitedOnChain
	}
	cs.protocolAddrs = removeAddr(cs.protocolAddrs, addr)
	r.sink.Emit(events.RemoveAllowedProtocolAddress{ProtocolID: protocolID, ChainID: chainID.String(), ProtocolAddr: addr})
	return r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
		ProtocolID: protocolID,
		Actor:      addr,
		Role:       wire.ActorProtocolAddress,
		Remove:     true,
	})
}

func (r *Registry) AddAllowedProposerAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	if err := checkOpaqueAddr(addr); err != nil {
		return err
	}
	cs := p.chain(chainID)
	switch cs.state {
	case NotInited:
		cs.pendingProposerAddrs = append(cs.pendingProposerAddrs, addr)
		return r.beginInit(protocolID, p, chainID)
	case OnInition:
		cs.pendingProposerAddrs = append(cs.pendingProposerAddrs, addr)
		return nil
	default:
		cs.proposerAddrs = append(cs.proposerAddrs, addr)
		r.sink.Emit(events.AddAllowedProposerAddress{ProtocolID: protocolID, ChainID: chainID.String(), Proposer: addr})
		return r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
			ProtocolID: protocolID,
			Actor:      addr,
			Role:       wire.ActorProposerAddress,
		})
	}
}

func (r *Registry) RemoveAllowedProposerAddress(caller common.Address, protocolID common.Hash, chainID uint256.Int, addr []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state != Inited {
		return ErrProtocolIsNotInitedOnChain
	}
	cs.proposerAddrs = removeAddr(cs.proposerAddrs, addr)
	r.sink.Emit(events.RemoveAllowedProposerAddress{ProtocolID: protocolID, ChainID: chainID.String(), Proposer: addr})
	return r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
		ProtocolID: protocolID,
		Actor:      addr,
		Role:       wire.ActorProposerAddress,
		Remove:     true,
	})
}

// AddExecutor whitelists an executor on [chainID]; permitted any time after
// init has started.
func (r *Registry) AddExecutor(caller common.Address, protocolID common.Hash, chainID uint256.Int, executor []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	if err := checkOpaqueAddr(executor); err != nil {
		return err
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state == NotInited {
		return ErrProtocolIsNotInitedOnChain
	}
	cs.executors = append(cs.executors, executor)
	r.sink.Emit(events.AddExecutor{ProtocolID: protocolID, ChainID: chainID.String(), Executor: executor})
	return r.emitter.Emit(chainID, wire.AddOrRemoveExecutor{ProtocolID: protocolID, Executor: executor})
}

func (r *Registry) RemoveExecutor(caller common.Address, protocolID common.Hash, chainID uint256.Int, executor []byte) error {
	p, err := r.requireOwner(protocolID, caller)
	if err != nil {
		return err
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state == NotInited {
		return ErrProtocolIsNotInitedOnChain
	}
	if protocolID == wire.GovProtocolID && len(cs.executors) == 1 && containsAddr(cs.executors, executor) {
		return ErrLastGovExecutor
	}
	cs.executors = removeAddr(cs.executors, executor)
	r.sink.Emit(events.RemoveExecutor{ProtocolID: protocolID, ChainID: chainID.String(), Executor: executor})
	return r.emitter.Emit(chainID, wire.AddOrRemoveExecutor{ProtocolID: protocolID, Executor: executor, Remove: true})
}

// HandleAddAllowedProtocol is the endpoint's callback completing a chain's
// init: flush queued protocol addresses, proposer addresses, then
// transmitters filtered to the currently allowed set.
func (r *Registry) HandleAddAllowedProtocol(protocolID common.Hash, chainID uint256.Int) error {
	p, err := r.get(protocolID)
	if err != nil {
		return err
	}
	cs, ok := p.chains[chainID]
	if !ok || cs.state != OnInition {
		return ErrProtocolIsNotInitedOnChain
	}
	cs.state = Inited

	for _, addr := range cs.pendingProtocolAddrs {
		cs.protocolAddrs = append(cs.protocolAddrs, addr)
		r.sink.Emit(events.AddAllowedProtocolAddress{ProtocolID: protocolID, ChainID: chainID.String(), ProtocolAddr: addr})
		if err := r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
			ProtocolID: protocolID,
			Actor:      addr,
			Role:       wire.ActorProtocolAddress,
		}); err != nil {
			return err
		}
	}
	cs.pendingProtocolAddrs = nil

	for _, addr := range cs.pendingProposerAddrs {
		cs.proposerAddrs = append(cs.proposerAddrs, addr)
		r.sink.Emit(events.AddAllowedProposerAddress{ProtocolID: protocolID, ChainID: chainID.String(), Proposer: addr})
		if err := r.emitter.Emit(chainID, wire.AddOrRemoveActorAddress{
			ProtocolID: protocolID,
			Actor:      addr,
			Role:       wire.ActorProposerAddress,
		}); err != nil {
			return err
		}
	}
	cs.pendingProposerAddrs = nil

	if len(cs.pendingTransmitters) > 0 {
		allowed := set.NewSet[common.Address](len(cs.pendingTransmitters))
		for _, tr := range r.ops.CurrentTransmitters(protocolID) {
			allowed.Add(tr)
		}
		flush := make([]common.Address, 0, len(cs.pendingTransmitters))
		for _, tr := range cs.pendingTransmitters {
			if allowed.Contains(tr) {
				flush = append(flush, tr)
			}
		}
		cs.pendingTransmitters = nil
		if len(flush) > 0 {
			if err := r.emitter.Emit(chainID, wire.AddOrRemoveTransmitters{ProtocolID: protocolID, Transmitters: flush}); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnTransmittersUpdated propagates a transmitter-set change to every chain
// the protocol touches: inited chains get the narrowest possible message,
// initing chains queue the full new set for the flush.
func (r *Registry) OnTransmittersUpdated(protocolID common.Hash, current, toAdd, toRemove []common.Address) error {
	p, err := r.get(protocolID)
	if err != nil {
		return err
	}
	for _, chainID := range p.chainIDs {
		cs := p.chains[chainID]
		switch cs.state {
		case Inited:
			var msg wire.GovMessage
			switch {
			case len(toAdd) == 0 && len(toRemove) == 0:
				continue
			case len(toRemove) == 0:
				msg = wire.AddOrRemoveTransmitters{ProtocolID: protocolID, Transmitters: toAdd}
			case len(toAdd) == 0:
				msg = wire.AddOrRemoveTransmitters{ProtocolID: protocolID, Transmitters: toRemove, Remove: true}
			default:
				msg = wire.UpdateTransmitters{ProtocolID: protocolID, ToAdd: toAdd, ToRemove: toRemove}
			}
			if err := r.emitter.Emit(chainID, msg); err != nil {
				return err
			}
		case OnInition:
			queued := make([]common.Address, len(current))
			copy(queued, current)
			cs.pendingTransmitters = queued
		}
	}
	return nil
}
