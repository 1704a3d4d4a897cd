// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip implements the Node-to-Node side of the protocol:
// signed envelope fan-out (Seen/ExecutionResult/LeaderTakeover),
// point-to-point Pull reconciliation, and inbound dispatch into package
// consensus's state machine. Fan-out follows multicast.Caster's style —
// snapshot the node set, release the lock, POST concurrently with an
// independent per-peer deadline — generalized from "K deterministic
// targets" to "every other active peer", since gossip propagates to the
// whole mesh rather than a selected subset.
package gossip

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/wire"
)

// EnvelopeVersion is the only version this node emits and accepts.
const EnvelopeVersion = 1

// DefaultTimeout bounds each per-peer gossip POST when the caller does
// not supply its own deadline.
const DefaultTimeout = 3 * time.Second

// Broadcaster signs and delivers gossip envelopes to other nodes.
type Broadcaster struct {
	Self    string
	Nodes   *registry.NodeSet
	Keys    *keys.KeyPair
	Client  *http.Client
	Timeout time.Duration
	Log     log.Logger
	NowUnix func() int64
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(self string, nodes *registry.NodeSet, kp *keys.KeyPair, timeout time.Duration, logger log.Logger) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broadcaster{
		Self:    self,
		Nodes:   nodes,
		Keys:    kp,
		Client:  &http.Client{},
		Timeout: timeout,
		Log:     logger,
	}
}

func (b *Broadcaster) now() int64 {
	if b.NowUnix != nil {
		return b.NowUnix()
	}
	return time.Now().Unix()
}

// Sign builds and signs an Envelope carrying payload under msgType,
// without sending it. Callers that need the signed envelope for a test
// fixture or a unicast reply can use this directly.
func (b *Broadcaster) Sign(msgType wire.MsgType, payload any) (*wire.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gossip: marshal %s payload: %w", msgType, err)
	}
	env := &wire.Envelope{
		EnvelopeID:   uuid.NewString(),
		Version:      EnvelopeVersion,
		MsgType:      msgType,
		SenderNodeID: b.Self,
		Timestamp:    b.now(),
		Payload:      raw,
	}
	sig := b.Keys.Sign(env.SignInput())
	env.SenderSignature = hex.EncodeToString(sig)
	return env, nil
}

// Broadcast signs an envelope carrying payload under msgType and POSTs
// it to every other active node's /gossip/<msg_type> endpoint
// concurrently, each under its own per-peer deadline.
func (b *Broadcaster) Broadcast(ctx context.Context, msgType wire.MsgType, payload any) error {
	env, err := b.Sign(msgType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("gossip: marshal envelope: %w", err)
	}

	activeIDs, byID := b.Nodes.Snapshot()
	var wg sync.WaitGroup
	for _, id := range activeIDs {
		if id == b.Self {
			continue
		}
		node := byID[id]
		wg.Add(1)
		go func(node registry.Node) {
			defer wg.Done()
			b.post(ctx, node, string(msgType), env.EnvelopeID, body)
		}(node)
	}
	wg.Wait()
	return nil
}

// SendTo signs an envelope and delivers it to exactly one node — used
// for the point-to-point half of Pull reconciliation.
func (b *Broadcaster) SendTo(ctx context.Context, nodeID string, msgType wire.MsgType, payload any) error {
	node, ok := b.Nodes.Get(nodeID)
	if !ok {
		return fmt.Errorf("gossip: unknown peer %q", nodeID)
	}
	env, err := b.Sign(msgType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("gossip: marshal envelope: %w", err)
	}
	if outcome := b.post(ctx, node, string(msgType), env.EnvelopeID, body); outcome != nil {
		return outcome
	}
	return nil
}

func (b *Broadcaster) post(ctx context.Context, node registry.Node, path, envelopeID string, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	url := node.Endpoint + "/gossip/" + path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		if b.Log != nil {
			b.Log.Debug("gossip post failed", "peer", node.NodeID, "path", path, "envelope_id", envelopeID, "error", err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gossip: peer %s returned HTTP %d", node.NodeID, resp.StatusCode)
	}
	return nil
}
