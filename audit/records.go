// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import "time"

// Confirmation is queued the moment a message reaches M-of-K consensus.
type Confirmation struct {
	MessageID string    `json:"message_id"`
	Leader    string    `json:"leader"`
	Backups   []string  `json:"backups"`
	At        time.Time `json:"at"`
}

// ActionLog is queued for every observed ExecutionResult, win or lose,
// and also for local quick-path LocalAction executions.
type ActionLog struct {
	MessageID    string    `json:"message_id"`
	ActionType   string    `json:"action_type"`
	Success      bool      `json:"success"`
	ExecutorNode string    `json:"executor_node_id,omitempty"`
	AgentReceipt string    `json:"agent_receipt,omitempty"`
	LocalOnly    bool      `json:"local_only"`
	At           time.Time `json:"at"`
}

// Equivocation is queued when two Seen records for the same message_id
// carry different msg_hash values. The owner's public key and the
// per-hash signatures that produced hash_a/hash_b are not carried here:
// the gossip state machine only retains (node_id, hash, seen_at) per
// attestation, not the signature itself, so only the conflicting hashes
// are available to record without broader plumbing changes.
type Equivocation struct {
	MessageID string    `json:"message_id"`
	HashA     string    `json:"hash_a"`
	HashB     string    `json:"hash_b"`
	At        time.Time `json:"at"`
}
