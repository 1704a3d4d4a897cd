// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus tracks the per-message gossip state machine and
// M-of-K quorum tally a node runs for every in-flight action, kept
// under a single mutex rather than a sharded concurrent map, since
// node-local message volume does not need sharded-map concurrency.
package consensus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/botconsensus/selection"
	"github.com/luxfi/botconsensus/utils"
	"github.com/luxfi/botconsensus/wire"
)

// Status is a message's position in the gossip state machine.
type Status string

const (
	StatusHeardViaSeen Status = "heard_via_seen"
	StatusReceived     Status = "received"
	StatusConfirmed    Status = "confirmed"
	StatusExecuting    Status = "executing"
	StatusCompleted    Status = "completed"
	StatusTimeout      Status = "timeout"
	StatusFailed       Status = "failed"
)

// Expiry is how long a message's state is retained after creation before
// GC sweeps it.
const Expiry = 60 * time.Second

// SeenRecord is one peer's attestation that it received a message, and
// which hash it observed.
type SeenRecord struct {
	NodeID string
	Hash   string
	SeenAt time.Time
}

// State is one message's full gossip state.
type State struct {
	MsgID            string
	Status           Status
	Original         *wire.SignedMessage
	SeenNodes        map[string]SeenRecord
	TargetNodes      []string
	Leader           string
	Backups          []string
	CreatedAt        time.Time
	ConfirmedAt      time.Time
	PullTimerStarted bool
	Votes            []wire.DecisionVote
}

// Store holds the gossip state of every message currently in flight.
// Readers and writers share a single mutex: node-local traffic is low
// enough that a sharded map buys nothing but complexity.
type Store struct {
	mu                sync.Mutex
	messages          map[string]*State
	messagesProcessed atomic.Uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{messages: make(map[string]*State)}
}

// OnAgentMessage records receipt of the original signed message from its
// Agent (or an upstream relay). If the message was already known via a
// Seen attestation, it transitions HeardViaSeen → Received; otherwise it
// creates a fresh Received entry.
func (s *Store) OnAgentMessage(msgID string, msg *wire.SignedMessage, targets []string, leader string, backups []string, now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.messages[msgID]
	if !ok {
		st = &State{
			MsgID:     msgID,
			SeenNodes: make(map[string]SeenRecord),
			CreatedAt: now,
		}
		s.messages[msgID] = st
	}
	if !ok || st.Status == StatusHeardViaSeen {
		st.Original = msg
		st.Status = StatusReceived
		st.TargetNodes = targets
		st.Leader = leader
		st.Backups = backups
	}
	return st.Status
}

// OnSeen records a peer's Seen attestation. It returns the message's
// current status and whether the caller should now issue a Pull — true
// exactly when this Seen is the first ever attestation for msgID (the
// node has heard of the message but never received its body).
func (s *Store) OnSeen(msgID, nodeID, hash string, now time.Time) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.messages[msgID]
	if !ok {
		st = &State{
			MsgID:     msgID,
			Status:    StatusHeardViaSeen,
			SeenNodes: make(map[string]SeenRecord),
			CreatedAt: now,
		}
		s.messages[msgID] = st
		st.SeenNodes[nodeID] = SeenRecord{NodeID: nodeID, Hash: hash, SeenAt: now}
		return StatusHeardViaSeen, true
	}

	st.SeenNodes[nodeID] = SeenRecord{NodeID: nodeID, Hash: hash, SeenAt: now}
	return st.Status, false
}

// CheckConsensus tallies Seen attestations that agree with the message's
// own hash (or, absent an original message, the most-frequent Seen hash)
// against M = selection.M(k) where k = len(target_nodes). reached is
// true only for the call that makes the Received→Confirmed transition;
// every call after that — including ones triggered by Seen traffic that
// keeps arriving post-quorum — reports (false, 0, 0), so a caller that
// reacts to reached (dispatching the leader, recording a confirmation)
// does so exactly once per message_id.
func (s *Store) CheckConsensus(msgID string, now time.Time) (reached bool, count, m int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.messages[msgID]
	if !ok {
		return false, 0, 0
	}
	if st.Status == StatusConfirmed || st.Status == StatusExecuting || st.Status == StatusCompleted ||
		st.Status == StatusFailed || st.Status == StatusTimeout {
		return false, 0, 0
	}

	k := len(st.TargetNodes)
	if k == 0 {
		return false, 0, 0
	}
	m = selection.M(k)
	if k <= 3 {
		m = k
	}

	var consistent int
	if st.Original != nil {
		consistent = 1 // the node's own copy counts as a witness
		for _, rec := range st.SeenNodes {
			if rec.Hash == st.Original.MessageHash {
				consistent++
			}
		}
	} else {
		bag := utils.NewBag[string]()
		for _, rec := range st.SeenNodes {
			bag.Add(rec.Hash)
		}
		_, consistent = bag.Mode()
	}

	if consistent >= m {
		st.Status = StatusConfirmed
		st.ConfirmedAt = now
		s.messagesProcessed.Add(1)
		return true, consistent, m
	}
	return false, consistent, m
}

// HasConflictingHashes reports whether two or more distinct hashes have
// been Seen for msgID — an equivocation by the message's owner or a
// relay equivocating.
func (s *Store) HasConflictingHashes(msgID string) (hashA, hashB string, conflict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.messages[msgID]
	if !ok {
		return "", "", false
	}
	seen := map[string]bool{}
	var distinct []string
	for _, rec := range st.SeenNodes {
		if !seen[rec.Hash] {
			seen[rec.Hash] = true
			distinct = append(distinct, rec.Hash)
		}
		if len(distinct) > 2 {
			break
		}
	}
	if len(distinct) < 2 {
		return "", "", false
	}
	return distinct[0], distinct[1], true
}

// GetStatus returns a message's current status.
func (s *Store) GetStatus(msgID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.messages[msgID]
	if !ok {
		return "", false
	}
	return st.Status, true
}

// GetOriginal returns the original signed message, for answering a peer's
// Pull request.
func (s *Store) GetOriginal(msgID string) (*wire.SignedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.messages[msgID]
	if !ok || st.Original == nil {
		return nil, false
	}
	return st.Original, true
}

// GetLeaderBackups returns the message's elected leader and backups.
func (s *Store) GetLeaderBackups(msgID string) (leader string, backups []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, exists := s.messages[msgID]
	if !exists {
		return "", nil, false
	}
	return st.Leader, st.Backups, true
}

func (s *Store) setStatus(msgID string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.messages[msgID]; ok {
		st.Status = status
	}
}

// SetExecuting marks a message as dispatched to its leader's Agent.
func (s *Store) SetExecuting(msgID string) { s.setStatus(msgID, StatusExecuting) }

// SetCompleted marks a message's action as having executed successfully.
func (s *Store) SetCompleted(msgID string) { s.setStatus(msgID, StatusCompleted) }

// SetFailed marks a message's action as having failed (leader timeout,
// Agent rejection, or platform API error).
func (s *Store) SetFailed(msgID string) { s.setStatus(msgID, StatusFailed) }

// SetTimeout marks a message as abandoned after no backup could execute
// it within the failover window.
func (s *Store) SetTimeout(msgID string) { s.setStatus(msgID, StatusTimeout) }

// AddVote records a DecisionVote payload for msgID. Votes are reserved
// for an explicit voting round beyond the current Seen-based tally
// The gossip endpoint still accepts and routes the payload regardless.
func (s *Store) AddVote(msgID string, vote wire.DecisionVote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.messages[msgID]; ok {
		st.Votes = append(st.Votes, vote)
	}
}

// SetPullTimerStarted marks that this node has already armed its
// reconciliation Pull timer for msgID, so a second HeardViaSeen does not
// arm a duplicate one.
func (s *Store) SetPullTimerStarted(msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.messages[msgID]; ok {
		st.PullTimerStarted = true
	}
}

// PullTimerStarted reports whether msgID's Pull timer has already been
// armed.
func (s *Store) PullTimerStarted(msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.messages[msgID]
	return ok && st.PullTimerStarted
}

// GCExpired removes every message whose CreatedAt is older than Expiry
// relative to now.
func (s *Store) GCExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.messages {
		if now.Sub(st.CreatedAt) >= Expiry {
			delete(s.messages, id)
		}
	}
}

// PendingExecution returns a snapshot of every message still Confirmed
// or Executing, for a backup's failover sweep to evaluate against
// FailoverManager.ShouldTakeover without holding the Store's lock for
// the duration of the sweep.
func (s *Store) PendingExecution() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.messages))
	for _, st := range s.messages {
		if st.Status == StatusConfirmed || st.Status == StatusExecuting {
			out = append(out, *st)
		}
	}
	return out
}

// ActiveCount returns the number of messages currently tracked.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// MessagesProcessed returns the lifetime count of messages that reached
// Confirmed.
func (s *Store) MessagesProcessed() uint64 {
	return s.messagesProcessed.Load()
}
