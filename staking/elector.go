// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package staking

import (
	"github.com/luxfi/geth/common"

	"github.com/photonlabs/hub/wire"
)

// SelectTransmittersForProtocol elects the protocol's transmitter set:
// manual transmitters first, kept verbatim and in order, then eligible
// agents' transmitters in the directory's current delegation order until the
// protocol's cap is reached. The gov protocol runs on manual transmitters
// only. The selection is deterministic for an unchanged directory.
func (l *Ledger) SelectTransmittersForProtocol(protocolID common.Hash) []common.Address {
	manual := l.protocols.ManualTransmitters(protocolID)
	selected := make([]common.Address, len(manual))
	copy(selected, manual)
	if protocolID == wire.GovProtocolID {
		return selected
	}

	max := l.protocols.MaxTransmitters(protocolID)
	minDelegate := l.protocols.MinDelegateAmount(protocolID)
	minPersonal := l.protocols.MinPersonalAmount(protocolID)

	for _, agentAddr := range l.directory.Enumerate() {
		if uint64(len(selected)) >= max {
			break
		}
		a := l.agents[agentAddr]
		if a == nil || !a.approved || a.paused {
			continue
		}
		if a.activeStake < minDelegate || a.personalStake < minPersonal {
			continue
		}
		transmitter, ok := l.resolver.TransmitterFor(agentAddr, protocolID)
		if !ok {
			continue
		}
		selected = append(selected, transmitter)
	}
	return selected
}
