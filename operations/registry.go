// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package operations is the hub's consensus engine: it ingests signed
// operation proposals, aggregates transmitter proofs to threshold approval,
// records watcher execution confirmations and tracks in-order nonces.
package operations

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/photonlabs/hub/bets"
	"github.com/photonlabs/hub/config"
	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/hashing"
	"github.com/photonlabs/hub/wire"
)

var (
	ErrTransmitterIsNotAllowed      = errors.New("transmitter is not allowed")
	ErrTransmitterIsAlreadyApproved = errors.New("transmitter already proved this operation")
	ErrWatcherIsNotAllowed          = errors.New("watcher is not allowed")
	ErrWatcherIsAlreadyApproved     = errors.New("watcher already confirmed this operation")
	ErrProtocolIsNotAllowed         = errors.New("protocol is not admitted with this address")
	ErrOperationIsAlreadyApproved   = errors.New("operation is already approved")
	ErrOperationNotFound            = errors.New("operation not found")
	ErrOpIsNotApproved              = errors.New("operation is not approved")
	ErrNoGovAddress                 = errors.New("no gov address known for destination chain")
	ErrInvalidConsensusRate         = errors.New("consensus target rate out of range")

	noncePrefix = []byte("nonce")
	opPrefix    = []byte("op")
)

// Proof is one transmitter's signature over an operation.
type Proof struct {
	Transmitter common.Address
	Signature   hashing.Signature
}

// Operation is the hub-side consensus state of one cross-chain message. It is
// created on the first proof and kept while history may be queried.
type Operation struct {
	Data          wire.OperationData
	Approved      bool
	Executed      bool
	Round         uint64
	ApproveHeight uint64
	Proofs        []Proof
	Watchers      []common.Address
}

func (o *Operation) hasProofFrom(transmitter common.Address) bool {
	for _, p := range o.Proofs {
		if p.Transmitter == transmitter {
			return true
		}
	}
	return false
}

func (o *Operation) hasWatcher(watcher common.Address) bool {
	for _, w := range o.Watchers {
		if w == watcher {
			return true
		}
	}
	return false
}

// ProofedTransmitters lists the transmitters currently backing the operation.
func (o *Operation) ProofedTransmitters() []common.Address {
	out := make([]common.Address, len(o.Proofs))
	for i, p := range o.Proofs {
		out[i] = p.Transmitter
	}
	return out
}

// Heights provides the external ordering height used for the one-height
// grace window after approval.
type Heights interface {
	Height() uint64
}

// RoundSource provides the current staking round.
type RoundSource interface {
	Round() uint64
}

// BetBook is the slice of the bet book the registry drives.
type BetBook interface {
	PlaceBet(protocolID common.Hash, transmitter common.Address, betType bets.BetType, opHash common.Hash, current bets.CurrentTransmitters) error
	RefundBet(protocolID common.Hash, opHash common.Hash, transmitter common.Address) error
	ReleaseBetsAndReward(protocolID common.Hash, winners []common.Address, opHash common.Hash) error
}

// ProtocolView is the slice of the protocol registry consulted on ingestion
// and transmitter updates.
type ProtocolView interface {
	IsProtocolAddressAllowed(protocolID common.Hash, chainID uint256.Int, addr []byte) bool
	ConsensusTargetRate(protocolID common.Hash) uint64
	GovAddress(chainID uint256.Int) ([]byte, bool)
	OnTransmittersUpdated(protocolID common.Hash, current, toAdd, toRemove []common.Address) error
}

type Registry struct {
	log     log.Logger
	sink    events.Sink
	heights Heights
	rounds  RoundSource
	metrics *metrics

	book      BetBook
	protocols ProtocolView

	ops map[common.Hash]*Operation

	// per-protocol allowed transmitters, list for order and set for lookup
	transmitterList map[common.Hash][]common.Address
	transmitterSet  map[common.Hash]set.Set[common.Address]

	// watchers is the union of transmitter sets, reference-counted
	watchers     set.Set[common.Address]
	watcherRefs  map[common.Address]uint64
	watchersRate uint64

	lastInOrderNonce map[common.Hash]map[uint256.Int]uint256.Int

	opDB    database.Database
	nonceDB database.Database
}

// DefaultWatchersRate is the default watcher consensus target rate.
const DefaultWatchersRate = 6000

func NewRegistry(
	logger log.Logger,
	heights Heights,
	rounds RoundSource,
	db database.Database,
	registerer prometheus.Registerer,
	sink events.Sink,
) (*Registry, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Registry{
		log:              logger,
		sink:             sink,
		heights:          heights,
		rounds:           rounds,
		metrics:          m,
		ops:              make(map[common.Hash]*Operation),
		transmitterList:  make(map[common.Hash][]common.Address),
		transmitterSet:   make(map[common.Hash]set.Set[common.Address]),
		watchers:         set.NewSet[common.Address](16),
		watcherRefs:      make(map[common.Address]uint64),
		watchersRate:     DefaultWatchersRate,
		lastInOrderNonce: make(map[common.Hash]map[uint256.Int]uint256.Int),
		opDB:             prefixdb.New(opPrefix, db),
		nonceDB:          prefixdb.New(noncePrefix, db),
	}, nil
}

// SetCollaborators wires the registry's handles once.
func (r *Registry) SetCollaborators(book BetBook, protocols ProtocolView) {
	if r.book == nil {
		r.book = book
		r.protocols = protocols
	}
}

// SetWatchersConsensusRate updates the watcher threshold; valid range
// (5500, 10000].
func (r *Registry) SetWatchersConsensusRate(rate uint64) error {
	if rate <= 5500 || rate > config.RateDenominator {
		return ErrInvalidConsensusRate
	}
	r.watchersRate = rate
	return nil
}

// CurrentTransmitters returns the protocol's allowed transmitters in
// election order.
func (r *Registry) CurrentTransmitters(protocolID common.Hash) []common.Address {
	list := r.transmitterList[protocolID]
	out := make([]common.Address, len(list))
	copy(out, list)
	return out
}

func (r *Registry) IsAllowedTransmitter(protocolID common.Hash, transmitter common.Address) bool {
	return r.transmitterSet[protocolID].Contains(transmitter)
}

func (r *Registry) IsWatcher(addr common.Address) bool {
	return r.watchers.Contains(addr)
}

// Operation returns the consensus state for [opHash].
func (r *Registry) Operation(opHash common.Hash) (*Operation, bool) {
	op, ok := r.ops[opHash]
	return op, ok
}

// LastInOrderNonce returns the nonce of the last executed in-order operation
// for (protocol, source chain).
func (r *Registry) LastInOrderNonce(protocolID common.Hash, srcChainID uint256.Int) (uint256.Int, bool) {
	nonce, ok := r.lastInOrderNonce[protocolID][srcChainID]
	return nonce, ok
}

// ProposeOperation ingests one signed proposal from [caller].
func (r *Registry) ProposeOperation(caller common.Address, opData *wire.OperationData, sig hashing.Signature) error {
	protocolID := opData.ProtocolID
	if !r.IsAllowedTransmitter(protocolID, caller) {
		r.metrics.rejected.Inc()
		return ErrTransmitterIsNotAllowed
	}
	if !r.protocols.IsProtocolAddressAllowed(protocolID, opData.DestChainID, opData.ProtocolAddr) {
		r.metrics.rejected.Inc()
		return ErrProtocolIsNotAllowed
	}
	if _, ok := r.protocols.GovAddress(opData.DestChainID); !ok {
		r.metrics.rejected.Inc()
		return ErrNoGovAddress
	}
	_, opHash, err := opData.Hash()
	if err != nil {
		r.metrics.rejected.Inc()
		return err
	}
	signer, err := hashing.RecoverSigner(opHash, sig)
	if err != nil {
		r.metrics.rejected.Inc()
		return err
	}
	if signer != caller {
		r.metrics.rejected.Inc()
		return hashing.ErrSignatureCheckFailed
	}

	currentRound := r.rounds.Round()
	op, ok := r.ops[opHash]
	if ok {
		// all rejections happen before the bet is placed so a rejected
		// proposal leaves no residue
		if op.Approved && r.heights.Height() > op.ApproveHeight+1 {
			r.metrics.rejected.Inc()
			return ErrOperationIsAlreadyApproved
		}
		if op.hasProofFrom(caller) {
			r.metrics.rejected.Inc()
			return ErrTransmitterIsAlreadyApproved
		}
	}
	if err := r.book.PlaceBet(protocolID, caller, bets.Msg, opHash, r.CurrentTransmitters); err != nil {
		return err
	}
	if !ok {
		r.ops[opHash] = &Operation{
			Data:   *opData,
			Round:  currentRound,
			Proofs: []Proof{{Transmitter: caller, Signature: sig}},
		}
		r.metrics.proposed.Inc()
		r.sink.Emit(events.NewOperation{OpHash: opHash, ProtocolID: protocolID})
		r.sink.Emit(events.NewProof{OpHash: opHash, Transmitter: caller})
		return r.checkApproval(protocolID, opHash, r.ops[opHash])
	}

	if !op.Approved && op.Round != currentRound {
		// the round rotated under this operation: keep only proofs from
		// still-allowed transmitters, refund the rest
		kept := op.Proofs[:0]
		for _, proof := range op.Proofs {
			if r.IsAllowedTransmitter(protocolID, proof.Transmitter) {
				kept = append(kept, proof)
				continue
			}
			if err := r.book.RefundBet(protocolID, opHash, proof.Transmitter); err != nil {
				return err
			}
		}
		op.Proofs = kept
		op.Round = currentRound
	}

	op.Proofs = append(op.Proofs, Proof{Transmitter: caller, Signature: sig})
	r.sink.Emit(events.NewProof{OpHash: opHash, Transmitter: caller})

	if op.Approved {
		return nil
	}
	return r.checkApproval(protocolID, opHash, op)
}

func (r *Registry) checkApproval(protocolID common.Hash, opHash common.Hash, op *Operation) error {
	total := uint64(r.transmitterSet[protocolID].Len())
	if total == 0 {
		return nil
	}
	proofs := uint64(len(op.Proofs))
	if proofs*config.RateDenominator/total < r.protocols.ConsensusTargetRate(protocolID) {
		return nil
	}
	op.Approved = true
	op.ApproveHeight = r.heights.Height()
	r.metrics.approved.Inc()
	r.sink.Emit(events.ProposalApproved{OpHash: opHash, ProofsCount: proofs})
	return nil
}

// ApproveOperationExecuting records a watcher's confirmation that [opHash]
// ran on its destination chain. A confirmation for an already-executed
// operation is accepted silently so racing watchers are not penalized.
func (r *Registry) ApproveOperationExecuting(watcher common.Address, opHash common.Hash) error {
	if !r.watchers.Contains(watcher) {
		return ErrWatcherIsNotAllowed
	}
	op, ok := r.ops[opHash]
	if !ok {
		return ErrOperationNotFound
	}
	if op.Executed {
		return nil
	}
	if !op.Approved {
		return ErrOpIsNotApproved
	}
	if op.hasWatcher(watcher) {
		return ErrWatcherIsAlreadyApproved
	}
	op.Watchers = append(op.Watchers, watcher)

	confirmations := uint64(len(op.Watchers))
	total := uint64(r.watchers.Len())
	if confirmations*config.RateDenominator/total < r.watchersRate {
		return nil
	}

	op.Executed = true
	protocolID := op.Data.ProtocolID
	if op.Data.Meta.InOrder() {
		byChain, ok := r.lastInOrderNonce[protocolID]
		if !ok {
			byChain = make(map[uint256.Int]uint256.Int)
			r.lastInOrderNonce[protocolID] = byChain
		}
		byChain[op.Data.SrcChainID] = op.Data.Nonce
		if err := r.persistInOrderNonce(protocolID, op.Data.SrcChainID, op.Data.Nonce); err != nil {
			return err
		}
	}
	if err := r.book.ReleaseBetsAndReward(protocolID, op.ProofedTransmitters(), opHash); err != nil {
		return err
	}
	if err := r.persistOperation(opHash, op); err != nil {
		return err
	}
	r.metrics.executed.Inc()
	r.sink.Emit(events.ProposalExecuted{OpHash: opHash})
	return nil
}

// persistOperation writes the executed operation's canonical encoding for
// recovery and audit.
func (r *Registry) persistOperation(opHash common.Hash, op *Operation) error {
	packed, err := op.Data.Pack()
	if err != nil {
		return err
	}
	key := ids.ID(opHash)
	return r.opDB.Put(key[:], packed)
}

func (r *Registry) persistInOrderNonce(protocolID common.Hash, srcChainID, nonce uint256.Int) error {
	chain := srcChainID.Bytes32()
	key := hashing.Keccak256(protocolID[:], chain[:])
	value := nonce.Bytes32()
	return r.nonceDB.Put(key[:], value[:])
}

// ExecutedOperation reads an executed operation's canonical encoding back
// from the record store.
func (r *Registry) ExecutedOperation(opHash common.Hash) ([]byte, error) {
	key := ids.ID(opHash)
	return r.opDB.Get(key[:])
}

// UpdateTransmitters replaces a protocol's allowed transmitter set, keeps the
// watcher union in sync and propagates the change to the protocol's chains.
func (r *Registry) UpdateTransmitters(protocolID common.Hash, transmitters []common.Address) error {
	oldSet := r.transmitterSet[protocolID]
	newSet := set.NewSet[common.Address](len(transmitters))
	var toAdd []common.Address
	for _, tr := range transmitters {
		newSet.Add(tr)
		if !oldSet.Contains(tr) {
			toAdd = append(toAdd, tr)
		}
	}
	var toRemove []common.Address
	for _, tr := range r.transmitterList[protocolID] {
		if !newSet.Contains(tr) {
			toRemove = append(toRemove, tr)
		}
	}

	for _, tr := range toAdd {
		r.addWatcher(tr)
	}
	for _, tr := range toRemove {
		r.dropWatcher(tr)
	}

	list := make([]common.Address, len(transmitters))
	copy(list, transmitters)
	r.transmitterList[protocolID] = list
	r.transmitterSet[protocolID] = newSet

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return nil
	}
	r.sink.Emit(events.UpdateTransmitters{ProtocolID: protocolID, ToAdd: toAdd, ToRemove: toRemove})
	return r.protocols.OnTransmittersUpdated(protocolID, list, toAdd, toRemove)
}

// RemoveTransmitter evicts one transmitter from the protocol's allowed set.
func (r *Registry) RemoveTransmitter(protocolID common.Hash, transmitter common.Address) error {
	if !r.transmitterSet[protocolID].Contains(transmitter) {
		return nil
	}
	list := r.transmitterList[protocolID]
	kept := make([]common.Address, 0, len(list)-1)
	for _, tr := range list {
		if tr != transmitter {
			kept = append(kept, tr)
		}
	}
	r.transmitterList[protocolID] = kept
	r.transmitterSet[protocolID].Remove(transmitter)
	r.dropWatcher(transmitter)
	r.sink.Emit(events.RemoveTransmitter{ProtocolID: protocolID, Transmitter: transmitter})
	return r.protocols.OnTransmittersUpdated(protocolID, kept, nil, []common.Address{transmitter})
}

func (r *Registry) addWatcher(addr common.Address) {
	r.watcherRefs[addr]++
	r.watchers.Add(addr)
}

func (r *Registry) dropWatcher(addr common.Address) {
	refs := r.watcherRefs[addr]
	if refs <= 1 {
		delete(r.watcherRefs, addr)
		r.watchers.Remove(addr)
		return
	}
	r.watcherRefs[addr] = refs - 1
}
