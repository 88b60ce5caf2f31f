// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth holds the capability table gating every hub mutator. The table
// is populated once at wiring time and sealed; after sealing it is read-only.
package auth

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

var (
	ErrUnauthorized = errors.New("caller does not hold the required role")
	ErrSealed       = errors.New("authority table is sealed")
)

type Role uint8

const (
	Admin Role = iota
	Approver
	Endpoint
	StakingContracts
	ABManager
	BetManager
	RoundManager
	RoundTrigger
	Pruner
)

func (r Role) String() string {
	switch r {
	case Admin:
		return "admin"
	case Approver:
		return "approver"
	case Endpoint:
		return "endpoint"
	case StakingContracts:
		return "staking contracts"
	case ABManager:
		return "agent/bet manager"
	case BetManager:
		return "bet manager"
	case RoundManager:
		return "round manager"
	case RoundTrigger:
		return "round trigger"
	case Pruner:
		return "pruner"
	default:
		return "unknown"
	}
}

type Table struct {
	grants map[Role]set.Set[common.Address]
	sealed bool
}

func NewTable() *Table {
	return &Table{grants: make(map[Role]set.Set[common.Address])}
}

func (t *Table) Grant(role Role, addr common.Address) error {
	if t.sealed {
		return ErrSealed
	}
	holders, ok := t.grants[role]
	if !ok {
		holders = set.NewSet[common.Address](1)
		t.grants[role] = holders
	}
	holders.Add(addr)
	return nil
}

// Seal freezes the table. Sealing an already-sealed table is a no-op.
func (t *Table) Seal() {
	t.sealed = true
}

func (t *Table) Sealed() bool {
	return t.sealed
}

func (t *Table) Require(role Role, caller common.Address) error {
	if t.grants[role].Contains(caller) {
		return nil
	}
	return fmt.Errorf("%w: %s is not %s", ErrUnauthorized, caller, role)
}
