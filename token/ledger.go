// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token abstracts the token movements the hub performs. The hub only
// ever moves balances in and out of its own custody; implementations must not
// call back into hub mutators during a transfer, and every hub mutator calls
// the ledger last.
package token

import (
	"errors"

	"github.com/luxfi/geth/common"
	safemath "github.com/luxfi/math"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Ledger interface {
	// Deposit pulls [amount] from [from] into hub custody.
	Deposit(from common.Address, amount uint64) error
	// Pay releases [amount] from hub custody to [to].
	Pay(to common.Address, amount uint64) error
}

// MemLedger is an in-memory ledger.
type MemLedger struct {
	balances map[common.Address]uint64
	custody  uint64
}

func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[common.Address]uint64)}
}

func (l *MemLedger) Mint(to common.Address, amount uint64) {
	l.balances[to] += amount
}

func (l *MemLedger) BalanceOf(addr common.Address) uint64 {
	return l.balances[addr]
}

func (l *MemLedger) Custody() uint64 {
	return l.custody
}

func (l *MemLedger) Deposit(from common.Address, amount uint64) error {
	balance := l.balances[from]
	if balance < amount {
		return ErrInsufficientFunds
	}
	l.balances[from] = balance - amount
	custody, err := safemath.Add(l.custody, amount)
	if err != nil {
		return err
	}
	l.custody = custody
	return nil
}

func (l *MemLedger) Pay(to common.Address, amount uint64) error {
	if l.custody < amount {
		return ErrInsufficientFunds
	}
	l.custody -= amount
	balance, err := safemath.Add(l.balances[to], amount)
	if err != nil {
		return err
	}
	l.balances[to] = balance
	return nil
}
