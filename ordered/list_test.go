// Copyright (C) 2024-2026, Photon Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ordered

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUninitialized(t *testing.T) {
	require := require.New(t)

	var l List[string]
	require.ErrorIs(l.Set("a", 1), ErrNotInitialized)
	require.ErrorIs(l.Clear(), ErrNotInitialized)
	_, ok := l.GetValue("a")
	require.False(ok)
	require.Empty(l.Enumerate())
}

func TestDoubleInit(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Ascending))
	require.ErrorIs(l.Init(Ascending), ErrAlreadyInitialized)
}

func TestAscending(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Ascending))
	require.NoError(l.Set("c", 30))
	require.NoError(l.Set("a", 10))
	require.NoError(l.Set("b", 20))
	require.Equal([]string{"a", "b", "c"}, l.Enumerate())
}

func TestDescending(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Descending))
	require.NoError(l.Set("a", 10))
	require.NoError(l.Set("c", 30))
	require.NoError(l.Set("b", 20))
	require.Equal([]string{"c", "b", "a"}, l.Enumerate())

	v, ok := l.GetValue("b")
	require.True(ok)
	require.Equal(uint64(20), v)
}

func TestReposition(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Descending))
	for _, kv := range []struct {
		k string
		v uint64
	}{{"a", 40}, {"b", 30}, {"c", 20}, {"d", 10}} {
		require.NoError(l.Set(kv.k, kv.v))
	}

	// move d to the front
	require.NoError(l.Set("d", 50))
	require.Equal([]string{"d", "a", "b", "c"}, l.Enumerate())

	// move a to the back
	require.NoError(l.Set("a", 5))
	require.Equal([]string{"d", "b", "c", "a"}, l.Enumerate())

	require.Equal(4, l.Len())
}

func TestSetIdempotent(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Descending))
	require.NoError(l.Set("a", 10))
	require.NoError(l.Set("b", 10))
	require.NoError(l.Set("a", 10))
	require.NoError(l.Set("a", 10))
	require.Equal([]string{"a", "b"}, l.Enumerate())
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Descending))
	require.NoError(l.Set("a", 10))
	require.NoError(l.Set("b", 10))
	require.NoError(l.Set("c", 10))
	require.Equal([]string{"a", "b", "c"}, l.Enumerate())

	// re-setting b to the tied value keeps the tie's relative order
	require.NoError(l.Set("b", 10))
	require.Equal([]string{"a", "b", "c"}, l.Enumerate())
}

func TestEnumerateMax(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Descending))
	require.NoError(l.Set("a", 3))
	require.NoError(l.Set("b", 2))
	require.NoError(l.Set("c", 1))
	require.Equal([]string{"a", "b"}, l.EnumerateMax(2))
	require.Equal([]string{"a", "b", "c"}, l.EnumerateMax(10))
	require.Empty(l.EnumerateMax(0))
}

func TestClear(t *testing.T) {
	require := require.New(t)

	l := &List[string]{}
	require.NoError(l.Init(Ascending))
	require.NoError(l.Set("a", 1))
	require.NoError(l.Clear())
	require.Zero(l.Len())
	require.Empty(l.Enumerate())
	require.NoError(l.Set("b", 2))
	require.Equal([]string{"b"}, l.Enumerate())
}
