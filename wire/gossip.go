// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/json"
	"fmt"
)

// MsgType discriminates the gossip payload union: every payload tags
// its envelope with one of these and is dispatched by that discriminant
// field.
type MsgType string

const (
	MsgSeen               MsgType = "seen"
	MsgPull               MsgType = "pull"
	MsgPullResponse       MsgType = "pull_response"
	MsgDecisionVote       MsgType = "decision_vote"
	MsgExecutionResult    MsgType = "execution_result"
	MsgLeaderTakeover     MsgType = "leader_takeover"
	MsgHeartbeat          MsgType = "heartbeat"
	MsgConfigSync         MsgType = "config_sync"
	MsgConfigPull         MsgType = "config_pull"
	MsgConfigPullResponse MsgType = "config_pull_response"
)

// Envelope is the outer shape of every gossip POST. EnvelopeID is not
// covered by SignInput: it exists purely for log correlation across a
// peer's retries of the same logical send, not for replay protection
// (each payload's own message_id and the SignedMessage sequence already
// cover that).
type Envelope struct {
	EnvelopeID      string          `json:"envelope_id"`
	Version         int             `json:"version"`
	MsgType         MsgType         `json:"msg_type"`
	SenderNodeID    string          `json:"sender_node_id"`
	Timestamp       int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
	SenderSignature string          `json:"sender_signature"`
}

// SignInput is the bytes a sender-signature covers: sender_node_id ∥
// msg_type ∥ timestamp_LE8 ∥ payload, exactly as received (no
// re-serialization, consistent with the canonical-bytes decision for
// SignedMessage).
func (e *Envelope) SignInput() []byte {
	buf := make([]byte, 0, len(e.SenderNodeID)+len(e.MsgType)+8+len(e.Payload))
	buf = append(buf, e.SenderNodeID...)
	buf = append(buf, e.MsgType...)
	buf = appendLE8(buf, uint64(e.Timestamp))
	buf = append(buf, e.Payload...)
	return buf
}

func appendLE8(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// Decode unmarshals e.Payload into v based on e.MsgType, returning an
// error if v's concrete type doesn't match the envelope's declared type.
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Seen is the gossip attestation that the sender received
// (message_id, msg_hash).
type Seen struct {
	MessageID     string `json:"message_id"`
	MsgHash       string `json:"msg_hash"`
	SenderNodeID  string `json:"sender_node_id"`
	ConfigVersion uint64 `json:"config_version"`
}

// Pull requests the original SignedMessage for an unknown message_id.
type Pull struct {
	MessageID string `json:"message_id"`
}

// PullResponse answers a Pull with the original signed message.
type PullResponse struct {
	MessageID string        `json:"message_id"`
	Message   SignedMessage `json:"message"`
}

// DecisionVote is reserved for future explicit voting rounds; the
// current M-of-K quorum is tallied from Seen records alone, so this
// payload currently carries no fields beyond its identity. It stays
// part of the gossip endpoint enumeration regardless, so a future
// voting round needs no protocol version bump to introduce it.
type DecisionVote struct {
	MessageID string `json:"message_id"`
	NodeID    string `json:"node_id"`
	Vote      string `json:"vote"`
}

// ExecutionResult is broadcast by the leader once it has dispatched (or
// short-circuited) an action.
type ExecutionResult struct {
	MessageID     string `json:"msg_id"`
	Success       bool   `json:"success"`
	AgentReceipt  string `json:"agent_receipt,omitempty"`
	ExecutorNode  string `json:"executor_node_id"`
}

// LeaderTakeover is broadcast by a backup that has armed and fired its
// failover timer.
type LeaderTakeover struct {
	MessageID      string `json:"msg_id"`
	OriginalLeader string `json:"original_leader"`
	BackupRank     int    `json:"backup_rank"`
}

// Heartbeat is a liveness signal between nodes; its payload is currently
// empty beyond the envelope's sender/timestamp fields.
type Heartbeat struct{}

// ConfigSync carries an owner-signed group config to peers.
type ConfigSync struct {
	Config SignedGroupConfig `json:"config"`
}

// ConfigPull requests the current config for a bot after restart.
type ConfigPull struct {
	BotIDHash string `json:"bot_id_hash"`
}

// ConfigPullResponse answers a ConfigPull.
type ConfigPullResponse struct {
	BotIDHash string            `json:"bot_id_hash"`
	Config    SignedGroupConfig `json:"config"`
}

// PayloadFor returns a freshly allocated zero value matching t, or an
// error if t is not a known payload tag.
func PayloadFor(t MsgType) (interface{}, error) {
	switch t {
	case MsgSeen:
		return &Seen{}, nil
	case MsgPull:
		return &Pull{}, nil
	case MsgPullResponse:
		return &PullResponse{}, nil
	case MsgDecisionVote:
		return &DecisionVote{}, nil
	case MsgExecutionResult:
		return &ExecutionResult{}, nil
	case MsgLeaderTakeover:
		return &LeaderTakeover{}, nil
	case MsgHeartbeat:
		return &Heartbeat{}, nil
	case MsgConfigSync:
		return &ConfigSync{}, nil
	case MsgConfigPull:
		return &ConfigPull{}, nil
	case MsgConfigPullResponse:
		return &ConfigPullResponse{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown msg_type %q", t)
	}
}
