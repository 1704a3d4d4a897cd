// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestK(t *testing.T) {
	cases := []struct{ n, k int }{
		{1, 1}, {2, 2}, {3, 3}, {5, 4}, {10, 7}, {20, 14},
	}
	for _, c := range cases {
		require.Equal(t, c.k, K(c.n), "n=%d", c.n)
	}
}

func TestM(t *testing.T) {
	require.Equal(t, 3, M(3))
	require.Equal(t, 5, M(7))
	require.Equal(t, 10, M(14))
}

func TestTargetsDeterministic(t *testing.T) {
	nodeIDs := make([]string, 10)
	for i := 0; i < 10; i++ {
		nodeIDs[i] = fmt.Sprintf("node_%03d", i)
	}
	var h [32]byte
	for i := range h {
		h[i] = 0xab
	}

	t1 := Targets(nodeIDs, h, 42, 5)
	t2 := Targets(nodeIDs, h, 42, 5)
	require.Equal(t, t1, t2)
	require.Len(t, t1, 5)

	seen := map[string]bool{}
	for _, id := range t1 {
		require.False(t, seen[id], "duplicate target %s", id)
		seen[id] = true
	}
}

func TestTargetsOrderIndependentOfInput(t *testing.T) {
	a := []string{"node_002", "node_000", "node_001"}
	b := []string{"node_000", "node_001", "node_002"}
	var h [32]byte
	require.Equal(t, Targets(a, h, 1, 3), Targets(b, h, 1, 3))
}

func TestLeaderRoundRobin(t *testing.T) {
	targets := []string{"a", "b", "c"}

	leader, backups := Leader(targets, 0)
	require.Equal(t, "a", leader)
	require.Equal(t, []string{"b", "c"}, backups)

	leader, backups = Leader(targets, 1)
	require.Equal(t, "b", leader)
	require.Equal(t, []string{"a", "c"}, backups)

	leader, _ = Leader(targets, 3)
	require.Equal(t, "a", leader)
}
