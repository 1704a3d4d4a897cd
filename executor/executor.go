// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/botconsensus/action"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/selection"
	"github.com/luxfi/botconsensus/wire"
)

// Timeout bounds one dispatch call to the platform API.
const Timeout = 10 * time.Second

// Executor validates and dispatches a leader's POST /v1/execute
// instruction against the Agent's own bot token, returning a signed
// receipt.
type Executor struct {
	BotIDHash string
	Keys      *keys.KeyPair
	Clients   map[string]Client // keyed by platform name ("telegram", "discord")

	// RequireLeaderSignature rejects an empty ExecuteAction.LeaderSignature
	// instead of allowing it. Production deployments set this from
	// !config.Agent.DevMode.
	RequireLeaderSignature bool
}

// New constructs an Executor for botIDHash, signing receipts with kp and
// dispatching to the given per-platform clients.
func New(botIDHash string, kp *keys.KeyPair, clients map[string]Client) *Executor {
	return &Executor{BotIDHash: botIDHash, Keys: kp, Clients: clients, RequireLeaderSignature: true}
}

// verifyError is returned by validateLeader; its message becomes
// ExecuteResult.Error.
type verifyError struct{ msg string }

func (e *verifyError) Error() string { return e.msg }

// validateLeader runs the four leader-validation checks in order: bot
// hash match, quorum size, leader membership, leader signature.
func (x *Executor) validateLeader(a *wire.ExecuteAction) error {
	if a.BotIDHash != x.BotIDHash {
		return &verifyError{fmt.Sprintf("bot_id_hash mismatch: want %s, got %s", x.BotIDHash, a.BotIDHash)}
	}

	k := len(a.ConsensusNodes)
	if k == 0 {
		return &verifyError{"consensus_nodes is empty"}
	}
	m := selection.M(k)
	if k <= 3 {
		m = k
	}
	if k < m {
		return &verifyError{fmt.Sprintf("insufficient consensus: %d < M(%d)", k, m)}
	}

	isLeader := false
	for _, n := range a.ConsensusNodes {
		if n == a.LeaderNodeID {
			isLeader = true
			break
		}
	}
	if !isLeader {
		return &verifyError{fmt.Sprintf("leader %s not in consensus_nodes", a.LeaderNodeID)}
	}

	if a.LeaderSignature == "" {
		// Empty leader_signature is allowed only in dev mode; production
		// wiring must set Executor.RequireLeaderSignature via config.
		if x.RequireLeaderSignature {
			return &verifyError{"leader_signature required"}
		}
		return nil
	}

	pkHex, sigHex, ok := splitSigned(a.LeaderSignature)
	if !ok {
		return &verifyError{"leader_signature malformed, want pubkey_hex:sig_hex"}
	}
	pk, err := hex.DecodeString(pkHex)
	if err != nil || len(pk) != 32 {
		return &verifyError{"leader public key invalid"}
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 64 {
		return &verifyError{"leader signature invalid"}
	}

	signInput := wire.LeaderSignInput(a.ActionID, a.BotIDHash, a.ActionType, a.ChatID)
	if !keys.VerifyBytes(pk, signInput, sig) {
		return &verifyError{"leader signature does not verify"}
	}
	return nil
}

func splitSigned(s string) (pkHex, sigHex string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// Execute runs validateLeader, dispatches to the platform API, and
// signs a receipt over the response.
func (x *Executor) Execute(ctx context.Context, a *wire.ExecuteAction) *wire.ExecuteResult {
	if err := x.validateLeader(a); err != nil {
		return &wire.ExecuteResult{Success: false, Error: err.Error()}
	}

	client, ok := x.Clients[a.Platform]
	if !ok {
		return &wire.ExecuteResult{Success: false, Error: fmt.Sprintf("no client configured for platform %q", a.Platform)}
	}

	method, params, err := buildCall(action.Type(a.ActionType), a.ChatID, a.Params)
	if err != nil {
		return &wire.ExecuteResult{Success: false, Error: err.Error()}
	}

	if method == "" {
		// NoAction: the leader short-circuits without calling the Agent,
		// but the receipt still covers a synthetic {"ok":true}.
		return x.sign(a, "no_action", json.RawMessage(`{"ok":true}`))
	}

	callCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	raw, apiOK, callErr := client.Call(callCtx, method, params)
	if callErr != nil || !apiOK {
		msg := "platform API returned failure"
		if callErr != nil {
			msg = callErr.Error()
		}
		return &wire.ExecuteResult{Success: false, Method: method, TgAPIResponse: raw, Error: msg}
	}

	return x.sign(a, method, raw)
}

func (x *Executor) sign(a *wire.ExecuteAction, method string, resp json.RawMessage) *wire.ExecuteResult {
	canon, err := canonicalizeJSON(resp)
	if err != nil {
		return &wire.ExecuteResult{Success: false, Method: method, Error: fmt.Sprintf("canonicalize response: %v", err)}
	}
	respHash := sha256.Sum256(canon)

	signInput := wire.ReceiptSignInput(a.ActionID, method, respHash[:])
	sig := x.Keys.Sign(signInput)
	agentSig := x.Keys.PublicHex() + ":" + hex.EncodeToString(sig)

	return &wire.ExecuteResult{
		Success:        true,
		Method:         method,
		TgAPIResponse:  resp,
		AgentSignature: agentSig,
	}
}

func canonicalizeJSON(raw json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
