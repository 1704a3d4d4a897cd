// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/botconsensus/action"
)

// buildCall maps an action.Type plus its raw params into a platform API
// method name and call parameters. method == "" signals NoAction: no
// API call is made.
func buildCall(actionType action.Type, chatID int64, rawParams json.RawMessage) (method string, params map[string]any, err error) {
	in := map[string]any{}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &in); err != nil {
			return "", nil, fmt.Errorf("decode action params: %w", err)
		}
	}

	switch actionType {
	case action.NoAction:
		return "", nil, nil

	case action.SendMessage:
		return "sendMessage", map[string]any{
			"chat_id": chatID,
			"text":    stringParam(in, "text"),
		}, nil

	case action.Delete:
		return "deleteMessage", map[string]any{
			"chat_id":    chatID,
			"message_id": in["message_id"],
		}, nil

	case action.Ban:
		return "banChatMember", map[string]any{
			"chat_id": chatID,
			"user_id": in["user_id"],
		}, nil

	case action.Kick:
		// Kick is emitted as the ban call alone; no unbanChatMember
		// follows, so the user stays banned until an explicit
		// action.Unban.
		return "banChatMember", map[string]any{
			"chat_id": chatID,
			"user_id": in["user_id"],
		}, nil

	case action.Unban:
		return "unbanChatMember", map[string]any{
			"chat_id":        chatID,
			"user_id":        in["user_id"],
			"only_if_banned": true,
		}, nil

	case action.Mute:
		duration := int64(action.DefaultMuteSeconds)
		if d, ok := numberParam(in, "duration_seconds"); ok {
			duration = d
		}
		untilDate := time.Now().Unix() + duration
		return "restrictChatMember", map[string]any{
			"chat_id":     chatID,
			"user_id":     in["user_id"],
			"permissions": map[string]any{"can_send_messages": false},
			"until_date":  untilDate,
		}, nil

	case action.Unmute:
		return "restrictChatMember", map[string]any{
			"chat_id": chatID,
			"user_id": in["user_id"],
			"permissions": map[string]any{
				"can_send_messages":        true,
				"can_send_media_messages":  true,
				"can_send_polls":           true,
				"can_send_other_messages":  true,
				"can_add_web_page_previews": true,
				"can_change_info":          false,
				"can_invite_users":         true,
				"can_pin_messages":         false,
			},
		}, nil

	case action.Pin:
		return "pinChatMessage", map[string]any{
			"chat_id":    chatID,
			"message_id": in["message_id"],
		}, nil

	case action.Unpin:
		return "unpinChatMessage", map[string]any{
			"chat_id":    chatID,
			"message_id": in["message_id"],
		}, nil

	case action.ApproveJoinRequest:
		return "approveChatJoinRequest", map[string]any{
			"chat_id": chatID,
			"user_id": in["user_id"],
		}, nil

	case action.DeclineJoinRequest:
		return "declineChatJoinRequest", map[string]any{
			"chat_id": chatID,
			"user_id": in["user_id"],
		}, nil

	default:
		return "", nil, fmt.Errorf("executor: unknown action type %q", actionType)
	}
}

func stringParam(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberParam(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
