// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package executor implements the Agent-side half of leader dispatch:
// validating a leader's POST /v1/execute instruction, dispatching it to
// the bot platform's HTTP API, and returning a signed receipt.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client calls one platform's bot HTTP API for a named method with the
// given parameters and returns the raw response body plus whether the
// platform reported success.
type Client interface {
	Call(ctx context.Context, method string, params map[string]any) (raw json.RawMessage, ok bool, err error)
}

// TelegramClient calls the Telegram Bot API: POST
// https://api.telegram.org/bot<token>/<method>.
type TelegramClient struct {
	Token string
	HTTP  *http.Client
}

// NewTelegramClient constructs a TelegramClient with a default HTTP
// client.
func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{Token: token, HTTP: &http.Client{}}
}

func (c *TelegramClient) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, bool, error) {
	if c.HTTP == nil {
		c.HTTP = &http.Client{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, false, fmt.Errorf("telegram: marshal params: %w", err)
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	raw, err := readAndDecode(resp.Body, &out)
	if err != nil {
		return nil, false, fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !out.OK {
		return raw, false, fmt.Errorf("telegram: %s: %s", method, out.Description)
	}
	return raw, true, nil
}

// DiscordClient calls the Discord REST API. Modeled on the same action
// vocabulary as TelegramClient (ban/unban/mute via timeout, message
// pin/delete, join-request decisions); Discord's v10 REST surface
// differs per method but the method set a Node ever asks for is fixed
// by package action, so one switch in Call covers all of them.
type DiscordClient struct {
	Token string
	HTTP  *http.Client
}

// NewDiscordClient constructs a DiscordClient with a default HTTP client.
func NewDiscordClient(token string) *DiscordClient {
	return &DiscordClient{Token: token, HTTP: &http.Client{}}
}

func (c *DiscordClient) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, bool, error) {
	if c.HTTP == nil {
		c.HTTP = &http.Client{}
	}
	httpMethod, url, body, err := discordRequest(method, params)
	if err != nil {
		return nil, false, err
	}

	var bodyReader *bytes.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	} else {
		bodyReader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, bodyReader)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bot "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("discord: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, readErr := readBody(resp.Body)
	if readErr != nil {
		return nil, false, fmt.Errorf("discord: %s: read response: %w", method, readErr)
	}
	if resp.StatusCode >= 300 {
		return raw, false, fmt.Errorf("discord: %s: HTTP %d", method, resp.StatusCode)
	}
	return raw, true, nil
}

const discordAPIBase = "https://discord.com/api/v10"

func discordRequest(method string, params map[string]any) (httpMethod, url string, body []byte, err error) {
	guildOrChannel := fmt.Sprintf("%v", params["chat_id"])

	switch method {
	case "sendMessage":
		url = fmt.Sprintf("%s/channels/%s/messages", discordAPIBase, guildOrChannel)
		body, err = json.Marshal(map[string]any{"content": params["text"]})
		return http.MethodPost, url, body, err
	case "deleteMessage":
		url = fmt.Sprintf("%s/channels/%s/messages/%v", discordAPIBase, guildOrChannel, params["message_id"])
		return http.MethodDelete, url, nil, nil
	case "banChatMember":
		url = fmt.Sprintf("%s/guilds/%s/bans/%v", discordAPIBase, guildOrChannel, params["user_id"])
		return http.MethodPut, url, nil, nil
	case "unbanChatMember":
		url = fmt.Sprintf("%s/guilds/%s/bans/%v", discordAPIBase, guildOrChannel, params["user_id"])
		return http.MethodDelete, url, nil, nil
	case "restrictChatMember":
		url = fmt.Sprintf("%s/guilds/%s/members/%v", discordAPIBase, guildOrChannel, params["user_id"])
		payload := map[string]any{}
		if until, ok := params["until_date"]; ok {
			payload["communication_disabled_until"] = until
		} else {
			payload["communication_disabled_until"] = nil
		}
		body, err = json.Marshal(payload)
		return http.MethodPatch, url, body, err
	case "pinChatMessage":
		url = fmt.Sprintf("%s/channels/%s/pins/%v", discordAPIBase, guildOrChannel, params["message_id"])
		return http.MethodPut, url, nil, nil
	case "unpinChatMessage":
		url = fmt.Sprintf("%s/channels/%s/pins/%v", discordAPIBase, guildOrChannel, params["message_id"])
		return http.MethodDelete, url, nil, nil
	case "approveChatJoinRequest":
		url = fmt.Sprintf("%s/guilds/%s/members/%v", discordAPIBase, guildOrChannel, params["user_id"])
		body, err = json.Marshal(map[string]any{})
		return http.MethodPut, url, body, err
	case "declineChatJoinRequest":
		url = fmt.Sprintf("%s/guilds/%s/members/%v/kick", discordAPIBase, guildOrChannel, params["user_id"])
		return http.MethodDelete, url, nil, nil
	default:
		return "", "", nil, fmt.Errorf("discord: unsupported method %q", method)
	}
}

func readBody(r io.Reader) (json.RawMessage, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(buf), nil
}

func readAndDecode(r io.Reader, out any) (json.RawMessage, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, err
	}
	return raw, nil
}
