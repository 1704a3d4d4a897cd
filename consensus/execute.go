// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/luxfi/botconsensus/action"
	"github.com/luxfi/botconsensus/errkind"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/platform"
	"github.com/luxfi/botconsensus/wire"
)

// ExecuteTimeout bounds how long the leader waits for its Agent's
// POST /v1/execute response before declaring the dispatch failed.
const ExecuteTimeout = 5 * time.Second

// AgentEndpointFunc resolves the HTTP base URL of the Agent process that
// owns a bot, given the message's bot_id_hash.
type AgentEndpointFunc func(botIDHash string) string

// DefaultAgentEndpoint reads AGENT_ENDPOINT, falling back to
// http://localhost:8443. A node currently has no registry entry mapping
// a bot to its Agent's address; until one exists, every leader talks to
// whatever Agent the environment points it at.
// TODO: resolve the Agent endpoint from bot registration data once nodes
// track it, instead of one process-wide environment variable.
func DefaultAgentEndpoint(_ string) string {
	if v := os.Getenv("AGENT_ENDPOINT"); v != "" {
		return v
	}
	return "http://localhost:8443"
}

// LeaderExecutor carries out the leader's half of dispatch: turn a
// Confirmed message's platform event into an action.Type, short-circuit
// NoAction, otherwise sign a leader commitment and POST it to the
// owning Agent, then fold the Agent's response back into the Store and
// into a wire.ExecutionResult ready for gossip broadcast.
type LeaderExecutor struct {
	NodeID    string
	Store     *Store
	Platforms *platform.Registry
	Keys      *keys.KeyPair
	Client    *http.Client
	Timeout   time.Duration
	Endpoint  AgentEndpointFunc
	Log       log.Logger
}

// NewLeaderExecutor constructs a LeaderExecutor with ExecuteTimeout and
// DefaultAgentEndpoint.
func NewLeaderExecutor(nodeID string, store *Store, platforms *platform.Registry, kp *keys.KeyPair, logger log.Logger) *LeaderExecutor {
	return &LeaderExecutor{
		NodeID:    nodeID,
		Store:     store,
		Platforms: platforms,
		Keys:      kp,
		Client:    &http.Client{},
		Timeout:   ExecuteTimeout,
		Endpoint:  DefaultAgentEndpoint,
		Log:       logger,
	}
}

// Execute runs the full leader flow for msgID: it must already be
// Confirmed with an Original message recorded. The returned
// ExecutionResult is ready to hand to a Broadcaster; the Store's status
// is updated to Completed or Failed before Execute returns (never left
// at Executing).
func (x *LeaderExecutor) Execute(ctx context.Context, msgID string) (wire.ExecutionResult, error) {
	msg, ok := x.Store.GetOriginal(msgID)
	if !ok {
		return wire.ExecutionResult{}, fmt.Errorf("consensus: no original message recorded for %q", msgID)
	}

	decision, err := x.determineAction(msg)
	if err != nil {
		x.Store.SetFailed(msgID)
		return wire.ExecutionResult{MessageID: msgID, Success: false, ExecutorNode: x.NodeID}, err
	}

	if !decision.Action.RequiresConsensus() {
		x.Store.SetCompleted(msgID)
		return wire.ExecutionResult{MessageID: msgID, Success: true, ExecutorNode: x.NodeID}, nil
	}

	x.Store.SetExecuting(msgID)

	params, err := json.Marshal(decision.Params)
	if err != nil {
		x.Store.SetFailed(msgID)
		return wire.ExecutionResult{MessageID: msgID, Success: false, ExecutorNode: x.NodeID}, fmt.Errorf("consensus: marshal action params: %w", err)
	}

	actionType := decision.Action.String()
	sig := x.Keys.Sign(wire.LeaderSignInput(msgID, msg.BotIDHash, actionType, decision.ChatID))

	req := wire.ExecuteAction{
		ActionID:        msgID,
		ActionType:      actionType,
		BotIDHash:       msg.BotIDHash,
		ChatID:          decision.ChatID,
		Params:          params,
		LeaderSignature: x.Keys.PublicHex() + ":" + hex.EncodeToString(sig),
		LeaderNodeID:    x.NodeID,
		ConsensusNodes:  x.consensusNodes(msgID),
		Platform:        msg.Platform,
	}

	result, dispatchErr := x.dispatch(ctx, msg.BotIDHash, req)
	result.MessageID = msgID
	result.ExecutorNode = x.NodeID
	if dispatchErr != nil || !result.Success {
		x.Store.SetFailed(msgID)
		if x.Log != nil {
			x.Log.Warn("leader execute failed", "msg_id", msgID, "error", dispatchErr, "kind", errkind.KindOf(dispatchErr).String())
		}
		return result, dispatchErr
	}

	x.Store.SetCompleted(msgID)
	return result, nil
}

func (x *LeaderExecutor) consensusNodes(msgID string) []string {
	_, backups, _ := x.Store.GetLeaderBackups(msgID)
	return append([]string{x.NodeID}, backups...)
}

func (x *LeaderExecutor) determineAction(msg *wire.SignedMessage) (platform.Decision, error) {
	adapter, err := x.Platforms.Get(msg.Platform)
	if err != nil {
		return platform.Decision{}, err
	}
	evt, ok := adapter.ParseEvent(msg.PlatformEvent)
	if !ok {
		return platform.Decision{Action: action.NoAction}, nil
	}
	return adapter.DetermineAction(evt), nil
}

// dispatch POSTs req to the owning Agent's /v1/execute and decodes its
// response. A transport error or non-2xx status is reported as a failed
// ExecutionResult rather than propagated as a bare error, so callers
// always have a result to broadcast.
func (x *LeaderExecutor) dispatch(ctx context.Context, botIDHash string, req wire.ExecuteAction) (wire.ExecutionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.ExecutionResult{Success: false}, fmt.Errorf("consensus: marshal execute action: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, x.Timeout)
	defer cancel()

	url := x.Endpoint(botIDHash) + "/v1/execute"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return wire.ExecutionResult{Success: false}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.Client.Do(httpReq)
	if err != nil {
		return wire.ExecutionResult{Success: false, AgentReceipt: ""}, errkind.Wrap(errkind.TransientIO, fmt.Errorf("consensus: agent request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wire.ExecutionResult{Success: false}, errkind.Wrap(errkind.TransientIO, fmt.Errorf("consensus: agent http %d", resp.StatusCode))
	}

	var out wire.ExecuteResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.ExecutionResult{Success: false}, fmt.Errorf("consensus: decode execute result: %w", err)
	}
	if !out.Success {
		return wire.ExecutionResult{Success: false, AgentReceipt: out.AgentSignature}, fmt.Errorf("consensus: agent reported failure: %s", out.Error)
	}
	return wire.ExecutionResult{Success: true, AgentReceipt: out.AgentSignature}, nil
}
