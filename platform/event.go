// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package platform normalizes per-platform webhook/gateway payloads into
// a single Event shape and turns that Event into an action.Type.
// Adapters are selected by SignedMessage.platform, with "telegram" as
// the compatibility default.
package platform

import (
	"encoding/json"
	"strconv"
)

// Event is the platform-independent view of one inbound update, built by
// an Adapter's ParseEvent from the raw platform JSON embedded in
// wire.SignedMessage.PlatformEvent.
type Event struct {
	Platform string `json:"platform"`

	GroupID   string `json:"group_id"`
	ChannelID string `json:"channel_id"`

	SenderID    string `json:"sender_id"`
	SenderIsBot bool   `json:"sender_is_bot"`

	Text      string `json:"text"`
	MessageID string `json:"message_id"`

	IsCommand    bool    `json:"is_command"`
	Command      string  `json:"command,omitempty"`
	CommandArgs  string  `json:"command_args,omitempty"`

	ReplyToUserID    string `json:"reply_to_user_id,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`

	// IsJoinRequest is a Telegram chat_join_request: the user asked to
	// join and needs an approval decision. IsJoinEvent is a member that
	// has already joined (Telegram new_chat_members, Discord
	// GUILD_MEMBER_ADD); it never requires ApproveJoinRequest.
	IsJoinRequest bool   `json:"is_join_request"`
	IsJoinEvent   bool   `json:"is_join_event"`
	JoinUserID    string `json:"join_user_id,omitempty"`
	IsLeaveEvent  bool   `json:"is_leave_event"`

	IsInteraction     bool   `json:"is_interaction"`
	InteractionID     string `json:"interaction_id,omitempty"`
	InteractionToken  string `json:"interaction_token,omitempty"`
	InteractionData   string `json:"interaction_data,omitempty"`

	IsMemberUpdate bool `json:"is_member_update"`

	Raw json.RawMessage `json:"-"`
}

// GroupIDInt64 parses GroupID as a signed integer chat/guild id,
// returning 0 if it is empty or non-numeric (Discord guild ids are
// numeric snowflakes represented as decimal strings; Telegram chat ids
// are already numeric).
func (e *Event) GroupIDInt64() int64 {
	return parseInt64(e.GroupID)
}

// SenderIDInt64 parses SenderID the same way as GroupIDInt64.
func (e *Event) SenderIDInt64() int64 {
	return parseInt64(e.SenderID)
}

// ReplyToUserIDInt64 parses ReplyToUserID, returning 0 when absent.
func (e *Event) ReplyToUserIDInt64() int64 {
	return parseInt64(e.ReplyToUserID)
}

// ReplyToMessageIDInt64 parses ReplyToMessageID, returning 0 when absent.
func (e *Event) ReplyToMessageIDInt64() int64 {
	return parseInt64(e.ReplyToMessageID)
}

// JoinUserIDInt64 parses JoinUserID, returning 0 when absent.
func (e *Event) JoinUserIDInt64() int64 {
	return parseInt64(e.JoinUserID)
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
