// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package agentapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/luxfi/botconsensus/config"
	"github.com/luxfi/botconsensus/executor"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/multicast"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/signer"
	"github.com/luxfi/botconsensus/wire"
)

func newTestServer(t *testing.T) (*Server, *keys.KeyPair) {
	t.Helper()
	dir := t.TempDir()

	kp, err := keys.LoadOrCreate(filepath.Join(dir, "owner.bin"))
	require.NoError(t, err)
	botIDHash := keys.BotIDHashHex("test-token")

	seq, err := sequence.Open(filepath.Join(dir, "sequence.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = seq.Close() })

	sg := signer.New(kp, botIDHash, seq, log.NewNop())

	nodes := registry.NewNodeSet()
	nodes.Upsert(registry.Node{NodeID: "node_a", Endpoint: "http://node-a", Status: registry.StatusActive})
	caster := multicast.New(nodes, 0, log.NewNop())

	ex := executor.New(botIDHash, kp, map[string]executor.Client{})

	cfg := &config.Agent{Platform: config.PlatformTelegram}

	srv := New(cfg, kp, botIDHash, sg, seq, caster, nodes, ex, nil, log.NewNop())
	return srv, kp
}

func TestHandleWebhookAcceptsAndSigns(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"message":{"chat":{"id":1},"text":"hello","from":{"id":2}}}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool `json:"success"`
		Result  struct {
			MessageID string `json:"message_id"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Result.MessageID)
}

func TestHandleWebhookRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookRejectsBadSecret(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Config.WebhookSecret = "s3cr3t"

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhookAcceptsGoodSecret(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Config.WebhookSecret = "s3cr3t"

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cr3t")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleExecuteRejectsValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	action := wire.ExecuteAction{
		ActionID:       "m1",
		ActionType:     "ban",
		BotIDHash:      "wrong-bot",
		ChatID:         1,
		ConsensusNodes: []string{"a", "b", "c"},
		LeaderNodeID:   "a",
		Platform:       "telegram",
	}
	body, err := json.Marshal(action)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleExecuteRejectsBadAuthToken(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Config.ExecuteToken = "tok"

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleHealthReportsStatus(t *testing.T) {
	srv, kp := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		NodesCount    int     `json:"nodes_count"`
		Details       struct {
			PublicKey string `json:"public_key"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, srv.Nodes.Len(), body.NodesCount)
	require.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
	require.Equal(t, kp.PublicHex(), body.Details.PublicKey)
}

func TestHandleWebhookRejectsOverRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Config.WebhookRateLimitPerSec = 1
	srv.WebhookLimiter = rate.NewLimiter(1, 1)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, post())
	require.Equal(t, http.StatusTooManyRequests, post())
}
