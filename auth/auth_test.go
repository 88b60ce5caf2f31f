// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	require := require.New(t)

	admin := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")

	table := NewTable()
	require.NoError(table.Grant(Admin, admin))
	require.NoError(table.Require(Admin, admin))
	require.ErrorIs(table.Require(Admin, other), ErrUnauthorized)
	require.ErrorIs(table.Require(Pruner, admin), ErrUnauthorized)

	table.Seal()
	require.True(table.Sealed())
	require.ErrorIs(table.Grant(Admin, other), ErrSealed)

	// sealing twice is a no-op
	table.Seal()
	require.NoError(table.Require(Admin, admin))
}

func TestRoleStrings(t *testing.T) {
	for _, role := range []Role{Admin, Approver, Endpoint, StakingContracts, ABManager, BetManager, RoundManager, RoundTrigger, Pruner} {
		require.NotEqual(t, "unknown", role.String())
	}
}
