// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verify implements the Node's four-layer inbound SignedMessage
// verification plus the sequence-window replay check, run in a fixed
// order: freshness, signature, bot-active, public-key match, (replay),
// target-membership.
package verify

import (
	"fmt"
	"time"

	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/selection"
	"github.com/luxfi/botconsensus/seqwindow"
	"github.com/luxfi/botconsensus/wire"
)

// Freshness is the maximum age a SignedMessage's timestamp may have.
const Freshness = 60 * time.Second

// Reason enumerates why a SignedMessage was rejected. Each maps to an
// HTTP status the Node's inbound endpoint returns.
type Reason string

const (
	ReasonStale           Reason = "stale"
	ReasonBadSignature    Reason = "bad_signature"
	ReasonBotUnknown      Reason = "bot_unknown_or_inactive"
	ReasonKeyMismatch     Reason = "owner_key_mismatch"
	ReasonReplay          Reason = "sequence_replay"
	ReasonNotTarget       Reason = "not_target"
	ReasonMalformed       Reason = "malformed"
)

// Error is returned by Message when a layer rejects the message.
type Error struct {
	Reason Reason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("verify: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("verify: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Verifier holds the Node-side dependencies needed to run all four
// layers plus the replay check.
type Verifier struct {
	Bots    *registry.BotRegistry
	Nodes   *registry.NodeSet
	Window  *seqwindow.Window
	NowUnix func() int64
}

// New constructs a Verifier.
func New(bots *registry.BotRegistry, nodes *registry.NodeSet, window *seqwindow.Window) *Verifier {
	return &Verifier{Bots: bots, Nodes: nodes, Window: window, NowUnix: func() int64 { return time.Now().Unix() }}
}

// Result is what a successful verification yields: this node's own
// node_id confirmed among the K targets, and the full target list, used
// to seed a message's gossip state with its target_nodes.
type Result struct {
	Targets []string
	K       int
}

// Message runs layers 0-4 in order against msg, for the Node identified
// by selfNodeID. A non-nil error is always *Error.
func (v *Verifier) Message(selfNodeID string, msg *wire.SignedMessage) (*Result, error) {
	// Layer 0: freshness.
	now := v.now()
	age := now - msg.Timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > Freshness {
		return nil, &Error{Reason: ReasonStale}
	}

	// Layer 1: signature.
	pk, botIDHash, msgHash, sig, err := msg.DecodeHexFields()
	if err != nil {
		return nil, &Error{Reason: ReasonMalformed, Cause: err}
	}
	signInput := wire.SignInput(pk, botIDHash, msg.Sequence, msg.Timestamp, msgHash)
	if !keys.VerifyBytes(pk, signInput, sig) {
		return nil, &Error{Reason: ReasonBadSignature}
	}

	// Layer 2: bot active.
	rec, ok := v.Bots.Lookup(msg.BotIDHash)
	if !ok || !rec.Active {
		return nil, &Error{Reason: ReasonBotUnknown}
	}

	// Layer 3: public-key match (defends against a compromised-but-not-
	// yet-rotated Agent whose key the registry has since replaced).
	if rec.OwnerPublicKey != msg.OwnerPublicKey {
		return nil, &Error{Reason: ReasonKeyMismatch}
	}

	// Replay check runs after signature and before target-membership: a
	// forged-signature message should never consume a slot in the replay
	// window, but a legitimately signed replay must be caught before this
	// node commits to being one of the message's targets.
	switch v.Window.Check(msg.BotIDHash, msg.Sequence) {
	case seqwindow.Reject, seqwindow.Duplicate:
		return nil, &Error{Reason: ReasonReplay}
	}

	// Layer 4: target membership — recompute K-selection with the
	// current node set.
	activeIDs, _ := v.Nodes.Snapshot()
	k := selection.K(len(activeIDs))
	var msgHashArr [32]byte
	copy(msgHashArr[:], msgHash)
	targets := selection.Targets(activeIDs, msgHashArr, msg.Sequence, k)

	if !isTargeted(targets, selfNodeID) {
		return nil, &Error{Reason: ReasonNotTarget}
	}

	return &Result{Targets: targets, K: k}, nil
}

// isTargeted reports whether selfNodeID is among the K nodes selection
// chose for this message. K is bounded by registry.NodeSet's active
// count, small enough that a linear scan beats building a set per
// verification call.
func isTargeted(targets []string, selfNodeID string) bool {
	for _, t := range targets {
		if t == selfNodeID {
			return true
		}
	}
	return false
}

func (v *Verifier) now() int64 {
	if v.NowUnix != nil {
		return v.NowUnix()
	}
	return time.Now().Unix()
}
