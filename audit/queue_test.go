// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/botconsensus/log"
)

func TestQueuePushAndDrain(t *testing.T) {
	q := NewQueue[int]("test", 10, log.NewNop())
	q.Push(1)
	q.Push(2)
	q.Push(3)
	require.Equal(t, 3, q.Len())

	got := q.Drain(2)
	require.Equal(t, []int{1, 2}, got)
	require.Equal(t, 1, q.Len())
}

func TestQueueEvictsOldestOnOverflow(t *testing.T) {
	q := NewQueue[int]("test", 3, log.NewNop())
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Push(4) // evicts 1

	require.Equal(t, 3, q.Len())
	require.EqualValues(t, 1, q.Dropped())
	require.Equal(t, []int{2, 3, 4}, q.Drain(0))
}

func TestQueueDrainAllWithNonPositiveMax(t *testing.T) {
	q := NewQueue[int]("test", 10, log.NewNop())
	q.Push(1)
	q.Push(2)
	require.Equal(t, []int{1, 2}, q.Drain(-1))
	require.Equal(t, 0, q.Len())
}

func TestQueueDrainMoreThanAvailable(t *testing.T) {
	q := NewQueue[int]("test", 10, log.NewNop())
	q.Push(1)
	require.Equal(t, []int{1}, q.Drain(50))
}
