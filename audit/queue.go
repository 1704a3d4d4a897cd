// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package audit implements a Node's pending-audit pipeline: three named
// FIFO queues — confirmations, action-logs, equivocations — each capped
// at a hard entry limit with oldest-evict on overflow, mirrored into a
// bbolt-backed durable store so a crash does not erase evidence awaiting
// the external (write-only) on-chain submission queue, and drained by a
// periodic flusher retrying with backoff.
package audit

import (
	"sync"

	"github.com/luxfi/botconsensus/log"
)

// QueueCap is the hard length cap each audit queue enforces: overflow
// evicts the oldest entry with a warning log rather than blocking.
const QueueCap = 10000

// Queue is a bounded in-memory FIFO. Push evicts the oldest entry (with
// a warning log) once len(items) == cap rather than blocking or
// rejecting the new one — the queue always reflects the most recent
// cap entries.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	name  string
	cap   int
	log   log.Logger

	// dropped counts entries evicted for being the oldest when full.
	dropped uint64
}

// NewQueue returns an empty Queue of the given name (used in eviction
// warnings) and capacity.
func NewQueue[T any](name string, capacity int, logger log.Logger) *Queue[T] {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Queue[T]{name: name, cap: capacity, log: logger}
}

// Push appends item, evicting the oldest entry first if the queue is
// already at capacity.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
		q.log.Warn("audit queue overflow, dropping oldest entry", "queue", q.name, "cap", q.cap, "dropped_total", q.dropped)
	}
	q.items = append(q.items, item)
}

// Drain removes and returns up to max items from the front of the
// queue, oldest first. max <= 0 drains everything.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.items) {
		max = len(q.items)
	}
	out := make([]T, max)
	copy(out, q.items[:max])
	q.items = q.items[max:]
	return out
}

// Len returns the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the lifetime count of entries evicted for overflow.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
