// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package seqwindow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstSequenceAccepted(t *testing.T) {
	w := New()
	require.Equal(t, Accept, w.Check("bot1", 5))
	last, ok := w.Last("bot1")
	require.True(t, ok)
	require.Equal(t, uint64(5), last)
}

func TestForwardProgressAccepted(t *testing.T) {
	w := New()
	w.Check("bot1", 10)
	require.Equal(t, Accept, w.Check("bot1", 11))
	require.Equal(t, Accept, w.Check("bot1", 20))
	last, _ := w.Last("bot1")
	require.Equal(t, uint64(20), last)
}

func TestReorderingWithinWindowAccepted(t *testing.T) {
	w := New()
	w.Check("bot1", 20)
	// last - s < W (10) => accept, last unchanged.
	require.Equal(t, Accept, w.Check("bot1", 15))
	last, _ := w.Last("bot1")
	require.Equal(t, uint64(20), last)
}

func TestReplayRejectedBeyondWindow(t *testing.T) {
	// P7: after observing sequence s, s' <= s - 10 is rejected.
	w := New()
	w.Check("bot1", 20)
	require.Equal(t, Reject, w.Check("bot1", 10))
	require.Equal(t, Reject, w.Check("bot1", 5))
}

func TestDuplicateSequenceDetected(t *testing.T) {
	w := New()
	w.Check("bot1", 20)
	require.Equal(t, Accept, w.Check("bot1", 18))
	require.Equal(t, Duplicate, w.Check("bot1", 18))
}

func TestWindowsPerBotIndependent(t *testing.T) {
	w := New()
	w.Check("bot1", 100)
	require.Equal(t, Accept, w.Check("bot2", 1))
}
