// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire defines the normative JSON envelopes exchanged between
// agents and nodes. Field names and casing are part of the wire
// contract: do not rename without a protocol version bump.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignedMessage is the canonical wire envelope an Agent emits for every
// platform event.
type SignedMessage struct {
	OwnerPublicKey string          `json:"owner_public_key"`
	BotIDHash      string          `json:"bot_id_hash"`
	Sequence       uint64          `json:"sequence"`
	Timestamp      int64           `json:"timestamp"`
	MessageHash    string          `json:"message_hash"`
	PlatformEvent  json.RawMessage `json:"platform_event"`
	Platform       string          `json:"platform"`
	OwnerSignature string          `json:"owner_signature"`
}

// MessageID is message_id = first16(hex(bot_id_hash)) ∥ "_" ∥ sequence.
// It uniquely names a signed event network-wide.
func MessageID(botIDHashHex string, sequence uint64) string {
	prefix := botIDHashHex
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return fmt.Sprintf("%s_%d", prefix, sequence)
}

// MessageID returns this message's message_id.
func (m *SignedMessage) MessageID() string {
	return MessageID(m.BotIDHash, m.Sequence)
}

// SignInput reconstructs the exact byte sequence the owner_signature
// covers: owner_public_key ∥ bot_id_hash ∥ sequence_LE8 ∥ timestamp_LE8 ∥
// message_hash. pkBytes, botIDHash, and msgHash are the raw (non-hex)
// bytes decoded from the hex fields.
func SignInput(pkBytes, botIDHash []byte, sequence uint64, timestamp int64, msgHash []byte) []byte {
	buf := make([]byte, 0, len(pkBytes)+len(botIDHash)+8+8+len(msgHash))
	buf = append(buf, pkBytes...)
	buf = append(buf, botIDHash...)
	buf = binary.LittleEndian.AppendUint64(buf, sequence)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	buf = append(buf, msgHash...)
	return buf
}

// DecodeHexFields decodes this message's hex-encoded public key, bot ID
// hash, message hash, and signature into raw bytes.
func (m *SignedMessage) DecodeHexFields() (pk, botIDHash, msgHash, sig []byte, err error) {
	pk, err = hex.DecodeString(m.OwnerPublicKey)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("owner_public_key: %w", err)
	}
	botIDHash, err = hex.DecodeString(m.BotIDHash)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("bot_id_hash: %w", err)
	}
	msgHash, err = hex.DecodeString(m.MessageHash)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("message_hash: %w", err)
	}
	sig, err = hex.DecodeString(m.OwnerSignature)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("owner_signature: %w", err)
	}
	return pk, botIDHash, msgHash, sig, nil
}

// ExecuteAction is the request body for POST /v1/execute.
type ExecuteAction struct {
	ActionID        string          `json:"action_id"`
	ActionType      string          `json:"action_type"`
	BotIDHash       string          `json:"bot_id_hash"`
	ChatID          int64           `json:"chat_id"`
	Params          json.RawMessage `json:"params,omitempty"`
	LeaderSignature string          `json:"leader_signature"`
	LeaderNodeID    string          `json:"leader_node_id"`
	ConsensusNodes  []string        `json:"consensus_nodes"`
	Platform        string          `json:"platform"`
}

// LeaderSignInput is sha256(action_id ∥ bot_id_hash ∥ action_type ∥
// chat_id_LE8) — the payload the leader's commitment signature covers.
// action_type here is the stable string enum from package action, not
// a language-native Debug/Stringer dump, so the signed payload never
// shifts across platforms or Go versions.
func LeaderSignInput(actionID, botIDHash, actionType string, chatID int64) []byte {
	buf := make([]byte, 0, len(actionID)+len(botIDHash)+len(actionType)+8)
	buf = append(buf, actionID...)
	buf = append(buf, botIDHash...)
	buf = append(buf, actionType...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(chatID))
	sum := sha256.Sum256(buf)
	return sum[:]
}

// ExecuteResult is the response body for POST /v1/execute.
type ExecuteResult struct {
	Success         bool            `json:"success"`
	Method          string          `json:"method"`
	TgAPIResponse   json.RawMessage `json:"tg_api_response,omitempty"`
	AgentSignature  string          `json:"agent_signature,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// ReceiptSignInput is action_id_bytes ∥ method_bytes ∥
// sha256(canonical_bytes(tg_resp)) — what agent_signature covers.
func ReceiptSignInput(actionID, method string, tgRespHash []byte) []byte {
	buf := make([]byte, 0, len(actionID)+len(method)+len(tgRespHash))
	buf = append(buf, actionID...)
	buf = append(buf, method...)
	buf = append(buf, tgRespHash...)
	return buf
}
