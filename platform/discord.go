// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package platform

import (
	"encoding/json"
	"strings"

	"github.com/luxfi/botconsensus/action"
)

// Discord implements Adapter for Discord Gateway events. Events arrive
// wrapped the way a Node-side relay would forward them: a discriminant
// field ("t" or "_discord_event_type") plus a payload ("d", falling
// back to the top-level object when absent).
type Discord struct{}

// NewDiscord constructs a Discord adapter.
func NewDiscord() *Discord { return &Discord{} }

func (Discord) Name() string { return "discord" }

func (Discord) ParseEvent(raw json.RawMessage) (*Event, bool) {
	var envelope struct {
		Type   string          `json:"_discord_event_type"`
		TAlias string          `json:"t"`
		D      json.RawMessage `json:"d"`
	}
	_ = json.Unmarshal(raw, &envelope)

	eventType := envelope.Type
	if eventType == "" {
		eventType = envelope.TAlias
	}
	data := envelope.D
	if len(data) == 0 {
		data = raw
	}

	switch eventType {
	case "MESSAGE_CREATE":
		return parseDiscordMessage(data, raw)
	case "GUILD_MEMBER_ADD":
		return parseDiscordMemberAdd(data, raw)
	case "GUILD_MEMBER_REMOVE":
		return parseDiscordMemberRemove(data, raw)
	case "INTERACTION_CREATE":
		return parseDiscordInteraction(data, raw)
	default:
		var probe struct {
			Content string          `json:"content"`
			Author  json.RawMessage `json:"author"`
			Data    json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(data, &probe)
		if probe.Content != "" || probe.Author != nil {
			return parseDiscordMessage(data, raw)
		}
		if probe.Data != nil {
			return parseDiscordInteraction(data, raw)
		}
		return nil, false
	}
}

func parseDiscordMessage(data, raw json.RawMessage) (*Event, bool) {
	var m struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		GuildID   string `json:"guild_id"`
		Author    struct {
			ID  string `json:"id"`
			Bot bool   `json:"bot"`
		} `json:"author"`
		Content         string `json:"content"`
		ReferencedMessage *struct {
			Author struct {
				ID string `json:"id"`
			} `json:"author"`
		} `json:"referenced_message"`
		MessageReference *struct {
			MessageID string `json:"message_id"`
		} `json:"message_reference"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}

	evt := &Event{
		Platform:    "discord",
		GroupID:     m.GuildID,
		ChannelID:   m.ChannelID,
		SenderID:    m.Author.ID,
		SenderIsBot: m.Author.Bot,
		Text:        m.Content,
		MessageID:   m.ID,
		Raw:         raw,
	}

	if strings.HasPrefix(evt.Text, "/") || strings.HasPrefix(evt.Text, "!") {
		evt.IsCommand = true
		body := evt.Text[1:]
		parts := strings.SplitN(body, " ", 2)
		evt.Command = parts[0]
		if len(parts) > 1 {
			evt.CommandArgs = parts[1]
		}
	}

	if m.ReferencedMessage != nil {
		evt.ReplyToUserID = m.ReferencedMessage.Author.ID
	}
	if m.MessageReference != nil {
		evt.ReplyToMessageID = m.MessageReference.MessageID
	}

	return evt, true
}

func parseDiscordMemberAdd(data, raw json.RawMessage) (*Event, bool) {
	var m struct {
		GuildID string `json:"guild_id"`
		User    struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &Event{
		Platform:    "discord",
		GroupID:     m.GuildID,
		SenderID:    m.User.ID,
		IsJoinEvent: true,
		JoinUserID:  m.User.ID,
		Raw:         raw,
	}, true
}

func parseDiscordMemberRemove(data, raw json.RawMessage) (*Event, bool) {
	var m struct {
		GuildID string `json:"guild_id"`
		User    struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &Event{
		Platform:     "discord",
		GroupID:      m.GuildID,
		SenderID:     m.User.ID,
		IsLeaveEvent: true,
		Raw:          raw,
	}, true
}

func parseDiscordInteraction(data, raw json.RawMessage) (*Event, bool) {
	var i struct {
		ID        string `json:"id"`
		Token     string `json:"token"`
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
		Member    *struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"member"`
		User *struct {
			ID string `json:"id"`
		} `json:"user"`
		Data struct {
			Name    string `json:"name"`
			Options []struct {
				Name  string `json:"name"`
				Value any    `json:"value"`
			} `json:"options"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, false
	}

	senderID := ""
	if i.Member != nil {
		senderID = i.Member.User.ID
	} else if i.User != nil {
		senderID = i.User.ID
	}

	var argParts []string
	for _, opt := range i.Data.Options {
		if s, ok := opt.Value.(string); ok {
			argParts = append(argParts, opt.Name+":"+s)
		}
	}

	evt := &Event{
		Platform:         "discord",
		GroupID:          i.GuildID,
		ChannelID:        i.ChannelID,
		SenderID:         senderID,
		IsInteraction:    true,
		InteractionID:    i.ID,
		InteractionToken: i.Token,
	}
	if i.Data.Name != "" {
		evt.IsCommand = true
		evt.Command = i.Data.Name
		evt.CommandArgs = strings.Join(argParts, " ")
	}
	evt.Raw = raw
	return evt, true
}

// DetermineAction mirrors Telegram's command vocabulary — only the
// trigger syntax differs per platform — so the two adapters yield
// identical action.Type values for identical intent.
func (Discord) DetermineAction(evt *Event) Decision {
	chatID := evt.GroupIDInt64()

	if evt.IsJoinEvent {
		return Decision{Action: action.NoAction, ChatID: chatID, Params: map[string]any{}}
	}
	if evt.IsLeaveEvent {
		return Decision{Action: action.NoAction, ChatID: chatID, Params: map[string]any{}}
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
