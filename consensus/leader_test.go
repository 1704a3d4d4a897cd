// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestElectRoundRobin(t *testing.T) {
	nodes := []string{"a", "b", "c"}

	leader, backups := Elect(nodes, 0)
	require.Equal(t, "a", leader)
	require.Equal(t, []string{"b", "c"}, backups)

	leader, backups = Elect(nodes, 1)
	require.Equal(t, "b", leader)
	require.Equal(t, []string{"a", "c"}, backups)

	leader, backups = Elect(nodes, 2)
	require.Equal(t, "c", leader)
	require.Equal(t, []string{"a", "b"}, backups)

	leader, _ = Elect(nodes, 3) // wraps around
	require.Equal(t, "a", leader)
}

func TestElectSingleNode(t *testing.T) {
	leader, backups := Elect([]string{"only"}, 42)
	require.Equal(t, "only", leader)
	require.Empty(t, backups)
}

func TestElectEmptySet(t *testing.T) {
	leader, backups := Elect(nil, 0)
	require.Empty(t, leader)
	require.Empty(t, backups)
}

func TestFailoverManagerRank(t *testing.T) {
	f := NewFailoverManager(5 * time.Second)
	backups := []string{"b1", "b2", "b3"}

	require.Equal(t, 0, f.Rank(backups, "b1"))
	require.Equal(t, 2, f.Rank(backups, "b3"))
	require.Equal(t, -1, f.Rank(backups, "nobody"))
}

func TestFailoverManagerWaitStaggersByRank(t *testing.T) {
	f := NewFailoverManager(5 * time.Second)

	require.Equal(t, 5*time.Second, f.Wait(0))
	require.Equal(t, 7*time.Second, f.Wait(1))
	require.Equal(t, 9*time.Second, f.Wait(2))
}

func TestShouldTakeoverRequiresElapsedWindow(t *testing.T) {
	f := NewFailoverManager(5 * time.Second)
	confirmedAt := time.Unix(1700000000, 0)
	st := &State{Status: StatusConfirmed, ConfirmedAt: confirmedAt}

	require.False(t, f.ShouldTakeover(st, 0, confirmedAt.Add(4*time.Second)))
	require.True(t, f.ShouldTakeover(st, 0, confirmedAt.Add(5*time.Second)))
}

func TestShouldTakeoverRejectsTerminalStatus(t *testing.T) {
	f := NewFailoverManager(5 * time.Second)
	confirmedAt := time.Unix(1700000000, 0)
	st := &State{Status: StatusCompleted, ConfirmedAt: confirmedAt}

	require.False(t, f.ShouldTakeover(st, 0, confirmedAt.Add(time.Hour)))
}

func TestShouldTakeoverRejectsNonBackup(t *testing.T) {
	f := NewFailoverManager(5 * time.Second)
	st := &State{Status: StatusConfirmed, ConfirmedAt: time.Unix(1700000000, 0)}

	require.False(t, f.ShouldTakeover(st, -1, time.Unix(1700001000, 0)))
}
