// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry tracks the active node set and the bot registration
// cache nodes use for their registered-owner and key-match checks:
// a sorted, externally-mutated set read under a short lock and sampled,
// without stake weighting — every active node counts as exactly one
// witness.
package registry

import (
	"sort"
	"sync"
)

// Status is a node's registration status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Node is one entry of the active node set.
type Node struct {
	NodeID        string
	Endpoint      string
	NodePublicKey string
	Status        Status
}

// NodeSet holds the live membership of operator nodes. Mutations are
// externally driven (a registry sync, an admin API); readers take a
// short read-lock, snapshot, and release before any network I/O.
type NodeSet struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewNodeSet returns an empty NodeSet.
func NewNodeSet() *NodeSet {
	return &NodeSet{nodes: make(map[string]Node)}
}

// Upsert adds or replaces a node entry.
func (s *NodeSet) Upsert(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.NodeID] = n
}

// Remove deletes a node entry.
func (s *NodeSet) Remove(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, nodeID)
}

// Snapshot returns the active node IDs, sorted lexicographically by
// node_id, and the endpoint/public-key lookup for those IDs. The lock
// is held only for the duration of the copy.
func (s *NodeSet) Snapshot() (activeIDs []string, byID map[string]Node) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID = make(map[string]Node, len(s.nodes))
	for id, n := range s.nodes {
		if n.Status == StatusActive {
			activeIDs = append(activeIDs, id)
			byID[id] = n
		}
	}
	sort.Strings(activeIDs)
	return activeIDs, byID
}

// Get returns a single node entry.
func (s *NodeSet) Get(nodeID string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	return n, ok
}

// Len returns the number of active nodes.
func (s *NodeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, node := range s.nodes {
		if node.Status == StatusActive {
			n++
		}
	}
	return n
}

// BotRecord is a Node-side cache entry for an Agent-owned bot: its
// owner's current public key and whether the bot is still active.
type BotRecord struct {
	BotIDHash       string
	OwnerPublicKey  string
	Active          bool
}

// BotRegistry is the Node's cached view of which bots are registered and
// who currently owns them.
type BotRegistry struct {
	mu   sync.RWMutex
	bots map[string]BotRecord
}

// NewBotRegistry returns an empty BotRegistry.
func NewBotRegistry() *BotRegistry {
	return &BotRegistry{bots: make(map[string]BotRecord)}
}

// Upsert adds or replaces a bot's registration record (e.g. after an
// owner-key rotation).
func (r *BotRegistry) Upsert(rec BotRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[rec.BotIDHash] = rec
}

// Lookup returns the cached record for a bot ID hash.
func (r *BotRegistry) Lookup(botIDHash string) (BotRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bots[botIDHash]
	return rec, ok
}
