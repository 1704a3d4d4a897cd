// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import "encoding/json"

// GroupConfig is per-bot policy. Field order below is the canonical
// serialization order the owner's signature covers: json.Marshal on a
// struct always emits fields in declaration order, so this ordering is
// load-bearing and must not be reshuffled.
type GroupConfig struct {
	BotIDHash       string          `json:"bot_id_hash"`
	GroupID         int64           `json:"group_id"`
	Version         uint64          `json:"version"`
	FloodLimit      int             `json:"flood_limit"`
	FloodWindowSecs int             `json:"flood_window_secs"`
	WarnThreshold   int             `json:"warn_threshold"`
	BlacklistWords  []string        `json:"blacklist_words,omitempty"`
	Locks           []string        `json:"locks,omitempty"`
	WelcomeText     string          `json:"welcome_text,omitempty"`
	AdminSet        []int64         `json:"admin_set,omitempty"`
	QuietHoursStart int             `json:"quiet_hours_start"`
	QuietHoursEnd   int             `json:"quiet_hours_end"`
	Extra           json.RawMessage `json:"extra,omitempty"`
}

// Canonical returns the exact bytes the owner key signs over: the JSON
// serialization of config in its declared field order.
func (c *GroupConfig) Canonical() ([]byte, error) {
	return json.Marshal(c)
}

// SignedGroupConfig is the gossip-distributed, owner-signed config
// envelope.
type SignedGroupConfig struct {
	Config          GroupConfig `json:"config"`
	Signature       string      `json:"signature"`
	SignerPublicKey string      `json:"signer_public_key"`
}
