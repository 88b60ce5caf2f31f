// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config carries the process-wide hub tunables. A single value is
// constructed at wiring time and handed down; admin gating of the setters
// happens at the hub boundary.
package config

import (
	"errors"
	"time"

	"github.com/luxfi/geth/common"
)

// RateDenominator scales every rate in the system: 10000 == 100%.
const RateDenominator = 10000

// MinBetTimeout bounds how fast stale bets may be pruned.
const MinBetTimeout = 30 * 24 * time.Hour

var (
	ErrInvalidFeeRate    = errors.New("fee rate exceeds the denominator")
	ErrBetTimeoutTooLow  = errors.New("bet timeout is below 30 days")
	ErrZeroAddress       = errors.New("zero address")
	ErrZeroValue         = errors.New("zero value")
	ErrInvalidRoundTime  = errors.New("round time must be positive")
	ErrInvalidSlashLimit = errors.New("slashing border must be positive")
)

type Global struct {
	FeeCollector             common.Address
	ProtocolRegisterFee      uint64
	ManualTransmitterFee     uint64
	ChangeProtocolParamsFee  uint64
	MinProtocolBalance       uint64
	MaxTransmittersCount     uint64
	AgentRewardFee           uint64
	AgentStakePerTransmitter uint64
	SlashingBorder           uint64
	ProtocolOperationFee     uint64
	InitNewChainFee          uint64
	BetTimeout               time.Duration
	MinRoundTime             time.Duration
}

// Default returns a config with the production defaults applied.
func Default() *Global {
	return &Global{
		MaxTransmittersCount: 32,
		AgentRewardFee:       1000,
		SlashingBorder:       10,
		BetTimeout:           MinBetTimeout,
		MinRoundTime:         time.Hour,
	}
}

func (g *Global) SetFeeCollector(addr common.Address) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	g.FeeCollector = addr
	return nil
}

func (g *Global) SetProtocolRegisterFee(fee uint64) error {
	g.ProtocolRegisterFee = fee
	return nil
}

func (g *Global) SetManualTransmitterFee(fee uint64) error {
	g.ManualTransmitterFee = fee
	return nil
}

func (g *Global) SetChangeProtocolParamsFee(fee uint64) error {
	g.ChangeProtocolParamsFee = fee
	return nil
}

func (g *Global) SetMinProtocolBalance(balance uint64) error {
	g.MinProtocolBalance = balance
	return nil
}

func (g *Global) SetMaxTransmittersCount(count uint64) error {
	if count == 0 {
		return ErrZeroValue
	}
	g.MaxTransmittersCount = count
	return nil
}

func (g *Global) SetAgentRewardFee(fee uint64) error {
	if fee > RateDenominator {
		return ErrInvalidFeeRate
	}
	g.AgentRewardFee = fee
	return nil
}

func (g *Global) SetAgentStakePerTransmitter(stake uint64) error {
	g.AgentStakePerTransmitter = stake
	return nil
}

func (g *Global) SetSlashingBorder(border uint64) error {
	if border == 0 {
		return ErrInvalidSlashLimit
	}
	g.SlashingBorder = border
	return nil
}

func (g *Global) SetProtocolOperationFee(fee uint64) error {
	g.ProtocolOperationFee = fee
	return nil
}

func (g *Global) SetInitNewChainFee(fee uint64) error {
	g.InitNewChainFee = fee
	return nil
}

func (g *Global) SetBetTimeout(timeout time.Duration) error {
	if timeout < MinBetTimeout {
		return ErrBetTimeoutTooLow
	}
	g.BetTimeout = timeout
	return nil
}

func (g *Global) SetMinRoundTime(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidRoundTime
	}
	g.MinRoundTime = d
	return nil
}
