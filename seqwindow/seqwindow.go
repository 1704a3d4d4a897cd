// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package seqwindow implements the Node-side replay-tolerance window
// over a bot's sequence numbers: accept any s > last, reject any
// s <= last - W, tolerate bounded reordering under fan-out.
package seqwindow

import "sync"

// W is the out-of-order tolerance.
const W = 10

// Window tracks the last-seen sequence per bot_id_hash.
type Window struct {
	mu   sync.Mutex
	last map[string]uint64
	seen map[string]map[uint64]struct{}
}

// New returns an empty Window.
func New() *Window {
	return &Window{
		last: make(map[string]uint64),
		seen: make(map[string]map[uint64]struct{}),
	}
}

// Result classifies the outcome of Check.
type Result int

const (
	// Accept: s is within tolerance and has not been seen before.
	Accept Result = iota
	// Reject: s <= last - W, too far behind to be legitimate reordering.
	Reject
	// Duplicate: s has already been accepted for this bot (same sequence,
	// potentially different hash — the caller must separately detect
	// equivocation by comparing message_hash; seqwindow only tracks the
	// sequence numbers it has admitted).
	Duplicate
)

// Check evaluates sequence s for botIDHash and, if accepted, records it.
// Updates last on strict forward progress.
func (w *Window) Check(botIDHash string, s uint64) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	last, ok := w.last[botIDHash]
	if !ok {
		w.last[botIDHash] = s
		w.recordLocked(botIDHash, s)
		return Accept
	}

	if s <= last && last-s >= W {
		return Reject
	}

	bySeq := w.seen[botIDHash]
	if bySeq != nil {
		if _, dup := bySeq[s]; dup {
			return Duplicate
		}
	}

	if s > last {
		w.last[botIDHash] = s
	}
	w.recordLocked(botIDHash, s)
	w.pruneLocked(botIDHash)
	return Accept
}

func (w *Window) recordLocked(botIDHash string, s uint64) {
	bySeq := w.seen[botIDHash]
	if bySeq == nil {
		bySeq = make(map[uint64]struct{})
		w.seen[botIDHash] = bySeq
	}
	bySeq[s] = struct{}{}
}

// pruneLocked drops remembered sequences that have fallen outside the
// tolerance window, bounding memory to roughly W entries per bot.
func (w *Window) pruneLocked(botIDHash string) {
	last := w.last[botIDHash]
	bySeq := w.seen[botIDHash]
	for s := range bySeq {
		if s <= last && last-s >= W {
			delete(bySeq, s)
		}
	}
}

// Last returns the last-seen sequence for botIDHash and whether any
// sequence has been observed yet.
func (w *Window) Last(botIDHash string) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.last[botIDHash]
	return last, ok
}
