// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestSetters(t *testing.T) {
	require := require.New(t)
	g := Default()

	require.ErrorIs(g.SetFeeCollector(common.Address{}), ErrZeroAddress)
	require.NoError(g.SetFeeCollector(common.HexToAddress("0x01")))

	require.ErrorIs(g.SetAgentRewardFee(RateDenominator+1), ErrInvalidFeeRate)
	require.NoError(g.SetAgentRewardFee(RateDenominator))

	require.ErrorIs(g.SetBetTimeout(29*24*time.Hour), ErrBetTimeoutTooLow)
	require.NoError(g.SetBetTimeout(45*24*time.Hour))

	require.ErrorIs(g.SetMinRoundTime(0), ErrInvalidRoundTime)
	require.NoError(g.SetMinRoundTime(30*time.Minute))

	require.ErrorIs(g.SetMaxTransmittersCount(0), ErrZeroValue)
	require.ErrorIs(g.SetSlashingBorder(0), ErrInvalidSlashLimit)
	require.NoError(g.SetSlashingBorder(3))
	require.Equal(uint64(3), g.SlashingBorder)
}
