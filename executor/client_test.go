// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// redirectTransport rewrites every outbound request's scheme/host to the
// test server's, leaving the path untouched, so TelegramClient/DiscordClient
// can be exercised against httptest without a configurable base URL.
type redirectTransport struct {
	target *url.URL
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestTelegramClientCallSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5}}`))
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c := &TelegramClient{Token: "tok123", HTTP: &http.Client{Transport: &redirectTransport{target: target}}}

	raw, ok, err := c.Call(context.Background(), "sendMessage", map[string]any{"chat_id": 1, "text": "hi"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(raw), "message_id")
	require.Contains(t, gotPath, "/bottok123/sendMessage")
}

func TestTelegramClientCallAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := &TelegramClient{Token: "tok", HTTP: &http.Client{Transport: &redirectTransport{target: target}}}

	_, ok, err := c.Call(context.Background(), "sendMessage", map[string]any{"chat_id": 1})
	require.False(t, ok)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestDiscordClientCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bot dtok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := &DiscordClient{Token: "dtok", HTTP: &http.Client{Transport: &redirectTransport{target: target}}}

	_, ok, err := c.Call(context.Background(), "banChatMember", map[string]any{"chat_id": "g1", "user_id": "u1"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDiscordRequestMapsMethodsToRoutes(t *testing.T) {
	cases := []struct {
		method     string
		wantHTTP   string
		wantSuffix string
	}{
		{"sendMessage", http.MethodPost, "/channels/c1/messages"},
		{"deleteMessage", http.MethodDelete, "/channels/c1/messages/m1"},
		{"banChatMember", http.MethodPut, "/guilds/c1/bans/u1"},
		{"unbanChatMember", http.MethodDelete, "/guilds/c1/bans/u1"},
		{"restrictChatMember", http.MethodPatch, "/guilds/c1/members/u1"},
		{"pinChatMessage", http.MethodPut, "/channels/c1/pins/m1"},
		{"unpinChatMessage", http.MethodDelete, "/channels/c1/pins/m1"},
		{"approveChatJoinRequest", http.MethodPut, "/guilds/c1/members/u1"},
		{"declineChatJoinRequest", http.MethodDelete, "/guilds/c1/members/u1/kick"},
	}

	for _, tc := range cases {
		httpMethod, url, _, err := discordRequest(tc.method, map[string]any{
			"chat_id": "c1", "user_id": "u1", "message_id": "m1",
		})
		require.NoError(t, err, tc.method)
		require.Equal(t, tc.wantHTTP, httpMethod, tc.method)
		require.Contains(t, url, tc.wantSuffix, tc.method)
	}
}

func TestDiscordRequestRejectsUnknownMethod(t *testing.T) {
	_, _, _, err := discordRequest("doSomethingElse", map[string]any{})
	require.Error(t, err)
}
