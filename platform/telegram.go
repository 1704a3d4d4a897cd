// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package platform

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/luxfi/botconsensus/action"
)

// Telegram implements Adapter for Telegram Bot API updates. It
// recognizes message/edited_message, callback_query, chat_join_request,
// and chat_member updates.
type Telegram struct{}

// NewTelegram constructs a Telegram adapter.
func NewTelegram() *Telegram { return &Telegram{} }

func (Telegram) Name() string { return "telegram" }

// ParseEvent parses a raw Telegram Update into an Event. It returns
// false for update shapes it does not recognize.
func (Telegram) ParseEvent(raw json.RawMessage) (*Event, bool) {
	var v map[string]json.RawMessage
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}

	evt := &Event{Platform: "telegram", Raw: raw}

	if cq, ok := v["callback_query"]; ok {
		var q struct {
			ID   string `json:"id"`
			Data string `json:"data"`
			From struct {
				ID    int64 `json:"id"`
				IsBot bool  `json:"is_bot"`
			} `json:"from"`
			Message struct {
				MessageID int64 `json:"message_id"`
				Chat      struct {
					ID int64 `json:"id"`
				} `json:"chat"`
			} `json:"message"`
		}
		_ = json.Unmarshal(cq, &q)
		evt.IsInteraction = true
		evt.InteractionID = q.ID
		evt.InteractionData = q.Data
		evt.SenderID = strconv.FormatInt(q.From.ID, 10)
		evt.SenderIsBot = q.From.IsBot
		evt.GroupID = strconv.FormatInt(q.Message.Chat.ID, 10)
		evt.MessageID = strconv.FormatInt(q.Message.MessageID, 10)
		return evt, true
	}

	if jr, ok := v["chat_join_request"]; ok {
		var j struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
			From struct {
				ID int64 `json:"id"`
			} `json:"from"`
		}
		_ = json.Unmarshal(jr, &j)
		evt.IsJoinRequest = true
		evt.GroupID = strconv.FormatInt(j.Chat.ID, 10)
		evt.JoinUserID = strconv.FormatInt(j.From.ID, 10)
		evt.SenderID = evt.JoinUserID
		return evt, true
	}

	if cm, ok := v["chat_member"]; ok {
		var m struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		}
		_ = json.Unmarshal(cm, &m)
		evt.IsMemberUpdate = true
		evt.GroupID = strconv.FormatInt(m.Chat.ID, 10)
		return evt, true
	}

	msgRaw, ok := v["message"]
	if !ok {
		msgRaw, ok = v["edited_message"]
	}
	if !ok {
		return nil, false
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID    int64 `json:"id"`
			IsBot bool  `json:"is_bot"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text          string `json:"text"`
		ReplyToMessage *struct {
			MessageID int64 `json:"message_id"`
			From      struct {
				ID int64 `json:"id"`
			} `json:"from"`
		} `json:"reply_to_message"`
		NewChatMembers []struct {
			ID int64 `json:"id"`
		} `json:"new_chat_members"`
		LeftChatMember json.RawMessage `json:"left_chat_member"`
	}
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return nil, false
	}

	evt.GroupID = strconv.FormatInt(msg.Chat.ID, 10)
	evt.SenderID = strconv.FormatInt(msg.From.ID, 10)
	evt.SenderIsBot = msg.From.IsBot
	evt.MessageID = strconv.FormatInt(msg.MessageID, 10)
	evt.Text = msg.Text

	if strings.HasPrefix(evt.Text, "/") {
		evt.IsCommand = true
		parts := strings.SplitN(evt.Text, " ", 2)
		cmd := parts[0]
		if at := strings.IndexByte(cmd, '@'); at >= 0 {
			cmd = cmd[:at]
		}
		evt.Command = strings.TrimPrefix(cmd, "/")
		if len(parts) > 1 {
			evt.CommandArgs = parts[1]
		}
	}

	if msg.ReplyToMessage != nil {
		evt.ReplyToUserID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
		evt.ReplyToMessageID = strconv.FormatInt(msg.ReplyToMessage.MessageID, 10)
	}

	if len(msg.NewChatMembers) > 0 {
		evt.IsJoinEvent = true
		evt.JoinUserID = strconv.FormatInt(msg.NewChatMembers[0].ID, 10)
	}
	if msg.LeftChatMember != nil {
		evt.IsLeaveEvent = true
	}

	return evt, true
}

// DetermineAction maps a parsed Event to the action it should trigger.
func (Telegram) DetermineAction(evt *Event) Decision {
	chatID := evt.GroupIDInt64()

	if evt.IsJoinRequest {
		return Decision{
			Action: action.ApproveJoinRequest,
			ChatID: chatID,
			Params: map[string]any{"user_id": evt.JoinUserIDInt64()},
		}
	}

	if evt.IsMemberUpdate {
		return Decision{Action: action.NoAction, ChatID: chatID, Params: map[string]any{}}
	}

	if evt.IsInteraction {
		return Decision{
			Action: action.NoAction,
			ChatID: chatID,
			Params: map[string]any{"callback_data": evt.InteractionData},
		}
	}

	if !evt.IsCommand {
		return Decision{Action: action.NoAction, ChatID: chatID, Params: map[string]any{}}
	}

	switch evt.Command {
	case "ban", "kick":
		return Decision{
			Action: action.Ban,
			ChatID: chatID,
			Params: map[string]any{"user_id": evt.ReplyToUserIDInt64()},
		}
	case "unban":
		return Decision{
			Action: action.Unban,
			ChatID: chatID,
			Params: map[string]any{"user_id": evt.ReplyToUserIDInt64()},
		}
	case "mute":
		return Decision{
			Action: action.Mute,
			ChatID: chatID,
			Params: map[string]any{
				"user_id":          evt.ReplyToUserIDInt64(),
				"duration_seconds": action.DefaultMuteSeconds,
			},
		}
	case "unmute":
		return Decision{
			Action: action.Unmute,
			ChatID: chatID,
			Params: map[string]any{"user_id": evt.ReplyToUserIDInt64()},
		}
	case "pin":
		return Decision{
			Action: action.Pin,
			ChatID: chatID,
			Params: map[string]any{"message_id": evt.ReplyToMessageIDInt64()},
		}
	case "del", "delete":
		return Decision{
			Action: action.Delete,
			ChatID: chatID,
			Params: map[string]any{"message_id": evt.ReplyToMessageIDInt64()},
		}
	default:
		return Decision{Action: action.NoAction, ChatID: chatID, Params: map[string]any{}}
	}
}
