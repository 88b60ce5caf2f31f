// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stream

import (
	"errors"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/utils/wrappers"

	"github.com/photonlabs/hub/events"
	"github.com/photonlabs/hub/hashing"
)

var (
	ErrKeyNotAllowed     = errors.New("data key is not allowed")
	ErrNothingToSnapshot = errors.New("no finalizations since the last root")

	rootPrefix = []byte("root")
)

// FinalizedData is one finalized datum of a stream.
type FinalizedData struct {
	Timestamp     time.Time
	FinalizedData []byte
	DataKey       common.Hash
}

// encode is the deterministic preimage of a merkle leaf.
func (d *FinalizedData) encode() []byte {
	p := wrappers.Packer{MaxSize: 2*common.HashLength + wrappers.LongLen + wrappers.IntLen + len(d.FinalizedData)}
	p.PackLong(uint64(d.Timestamp.Unix()))
	p.PackFixedBytes(d.DataKey[:])
	p.PackBytes(d.FinalizedData)
	return p.Bytes
}

// lane is the master state for one (protocol, source) stream.
type lane struct {
	allowedKeys     []common.Hash
	onlyAllowedKeys bool
	allowed         map[common.Hash]bool

	merkleRoot     common.Hash
	finalized      map[common.Hash]FinalizedData
	latestSnapshot map[common.Hash]FinalizedData

	// finalizations since the last root recalculation
	counter uint64
}

// MasterSpotter aggregates finalized stream data per (protocol, source) and
// maintains a merkle root over the allowed keys' latest values.
type MasterSpotter struct {
	log  log.Logger
	sink events.Sink
	db   database.Database

	lanes map[spotterKey]*lane
}

func NewMasterSpotter(logger log.Logger, db database.Database, sink events.Sink) *MasterSpotter {
	return &MasterSpotter{
		log:   logger,
		sink:  sink,
		db:    prefixdb.New(rootPrefix, db),
		lanes: make(map[spotterKey]*lane),
	}
}

// SetAllowedKeys configures the key whitelist for one stream. With
// [onlyAllowedKeys] unset, unknown keys are accepted but excluded from the
// root.
func (m *MasterSpotter) SetAllowedKeys(protocolID, sourceID common.Hash, keys []common.Hash, onlyAllowedKeys bool) {
	l := m.lane(protocolID, sourceID)
	l.allowedKeys = keys
	l.onlyAllowedKeys = onlyAllowedKeys
	l.allowed = make(map[common.Hash]bool, len(keys))
	for _, k := range keys {
		l.allowed[k] = true
	}
}

func (m *MasterSpotter) lane(protocolID, sourceID common.Hash) *lane {
	key := spotterKey{protocolID: protocolID, sourceID: sourceID}
	l, ok := m.lanes[key]
	if !ok {
		l = &lane{
			allowed:        make(map[common.Hash]bool),
			finalized:      make(map[common.Hash]FinalizedData),
			latestSnapshot: make(map[common.Hash]FinalizedData),
		}
		m.lanes[key] = l
	}
	return l
}

// pushFinalizedData records a finalized datum; only the stream consensus
// calls this.
func (m *MasterSpotter) pushFinalizedData(protocolID, sourceID common.Hash, datum FinalizedData) error {
	l := m.lane(protocolID, sourceID)
	if l.onlyAllowedKeys && !l.allowed[datum.DataKey] {
		return ErrKeyNotAllowed
	}
	l.finalized[datum.DataKey] = datum
	l.counter++
	return nil
}

// Finalized returns the latest finalized datum for [dataKey].
func (m *MasterSpotter) Finalized(protocolID, sourceID, dataKey common.Hash) (FinalizedData, bool) {
	l, ok := m.lanes[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return FinalizedData{}, false
	}
	d, ok := l.finalized[dataKey]
	return d, ok
}

// MerkleRoot returns the last recalculated root.
func (m *MasterSpotter) MerkleRoot(protocolID, sourceID common.Hash) common.Hash {
	if l, ok := m.lanes[spotterKey{protocolID: protocolID, sourceID: sourceID}]; ok {
		return l.merkleRoot
	}
	return common.Hash{}
}

// LatestSnapshot returns the per-key data the current root was built from.
func (m *MasterSpotter) LatestSnapshot(protocolID, sourceID, dataKey common.Hash) (FinalizedData, bool) {
	l, ok := m.lanes[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok {
		return FinalizedData{}, false
	}
	d, ok := l.latestSnapshot[dataKey]
	return d, ok
}

// RecalculateMerkleRoot rebuilds the root over the allowed keys' latest
// finalized data and snapshots the inputs. Rejected when nothing was
// finalized since the last root.
func (m *MasterSpotter) RecalculateMerkleRoot(protocolID, sourceID common.Hash) (common.Hash, error) {
	l, ok := m.lanes[spotterKey{protocolID: protocolID, sourceID: sourceID}]
	if !ok || l.counter == 0 {
		return common.Hash{}, ErrNothingToSnapshot
	}

	leaves := make([]common.Hash, 0, len(l.allowedKeys))
	for _, key := range l.allowedKeys {
		datum, ok := l.finalized[key]
		if !ok {
			continue
		}
		inner := hashing.Keccak256(datum.encode())
		leaves = append(leaves, hashing.Keccak256(inner[:]))
	}
	root := calcMerkleRoot(leaves)
	l.merkleRoot = root

	l.latestSnapshot = make(map[common.Hash]FinalizedData, len(l.finalized))
	for k, v := range l.finalized {
		l.latestSnapshot[k] = v
	}
	l.counter = 0

	if err := m.persistRoot(protocolID, sourceID, root); err != nil {
		return common.Hash{}, err
	}
	m.sink.Emit(events.NewMerkleRoot{ProtocolID: protocolID, SourceID: sourceID, Root: root})
	return root, nil
}

func (m *MasterSpotter) persistRoot(protocolID, sourceID common.Hash, root common.Hash) error {
	key := hashing.Keccak256(protocolID[:], sourceID[:])
	return m.db.Put(key[:], root[:])
}

// PersistedRoot reads the last stored root for (protocol, source) back from
// the record store.
func (m *MasterSpotter) PersistedRoot(protocolID, sourceID common.Hash) (common.Hash, error) {
	key := hashing.Keccak256(protocolID[:], sourceID[:])
	raw, err := m.db.Get(key[:])
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}
