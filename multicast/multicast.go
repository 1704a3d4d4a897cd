// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package multicast implements the Agent's deterministic K-of-N fan-out
// of a freshly signed message to its selected target Nodes. The webhook
// handler must already have responded 200 to the platform before Cast
// is spawned: Cast is fire-and-forget from the handler's point of view.
package multicast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/selection"
	"github.com/luxfi/botconsensus/wire"
)

// Outcome classifies one target's POST /v1/message result: 2xx is a
// success, any other status is a protocol failure, and a transport
// error or deadline is a timeout.
type Outcome int

const (
	Success Outcome = iota
	ProtocolFailure
	Timeout
)

// Result aggregates per-target outcomes from one Cast.
type Result struct {
	Targets  []string
	Outcomes map[string]Outcome
}

// SuccessCount returns how many targets returned 2xx.
func (r *Result) SuccessCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o == Success {
			n++
		}
	}
	return n
}

// Caster fans a SignedMessage out to its K deterministic targets.
type Caster struct {
	Nodes   *registry.NodeSet
	Client  *http.Client
	Timeout time.Duration
	Log     log.Logger
}

// DefaultTimeout is the per-target deadline when the caller passes no
// positive timeout.
const DefaultTimeout = 3 * time.Second

// New constructs a Caster with the given per-target timeout.
func New(nodes *registry.NodeSet, timeout time.Duration, logger log.Logger) *Caster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Caster{
		Nodes:   nodes,
		Client:  &http.Client{},
		Timeout: timeout,
		Log:     logger,
	}
}

// Cast selects the K targets for msg using the same deterministic
// algorithm as selection.Targets, snapshots the node set under a short
// read-lock, releases it, and then POSTs msg to each target concurrently
// with an independent per-target deadline. It never blocks the caller
// longer than Timeout plus scheduling slack, regardless of how many
// targets are slow.
func (c *Caster) Cast(ctx context.Context, msg *wire.SignedMessage) (*Result, error) {
	_, _, msgHash, _, err := msg.DecodeHexFields()
	if err != nil {
		return nil, fmt.Errorf("multicast: decode message_hash: %w", err)
	}
	var msgHashArr [32]byte
	copy(msgHashArr[:], msgHash)

	activeIDs, byID := c.Nodes.Snapshot()
	k := selection.K(len(activeIDs))
	targets := selection.Targets(activeIDs, msgHashArr, msg.Sequence, k)

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("multicast: marshal message: %w", err)
	}

	res := &Result{
		Targets:  targets,
		Outcomes: make(map[string]Outcome, len(targets)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, nodeID := range targets {
		node, ok := byID[nodeID]
		if !ok {
			mu.Lock()
			res.Outcomes[nodeID] = Timeout
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(node registry.Node) {
			defer wg.Done()
			outcome := c.post(ctx, node, body)
			mu.Lock()
			res.Outcomes[node.NodeID] = outcome
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	if c.Log != nil {
		c.Log.Debug("multicast complete", "message_id", msg.MessageID(), "targets", len(targets), "success", res.SuccessCount())
	}
	return res, nil
}

func (c *Caster) post(ctx context.Context, node registry.Node, body []byte) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	url := node.Endpoint + "/v1/message"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Timeout
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return Timeout
		}
		return Timeout
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Success
	}
	return ProtocolFailure
}
