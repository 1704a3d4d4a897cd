// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/luxfi/botconsensus/consensus"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/verify"
	"github.com/luxfi/botconsensus/wire"
)

// PullJitter bounds the randomized delay before a node issues a Pull for
// a message it only knows about via Seen, to avoid pull storms when many
// peers emit Seen for the same message at once.
const PullJitter = 250 * time.Millisecond

// Dispatcher routes inbound gossip envelopes into package consensus's
// state machine and issues the reactions they call for (Pull replies,
// equivocation records, execution-result bookkeeping).
type Dispatcher struct {
	Self        string
	Store       *consensus.Store
	Nodes       *registry.NodeSet
	Verifier    *verify.Verifier
	Broadcaster *Broadcaster
	Keys        *keys.KeyPair
	Log         log.Logger

	// Rand drives Pull jitter; overridden in tests for determinism.
	Rand *rand.Rand

	// OnEquivocation is invoked when two Seen records for the same
	// message_id carry different msg_hash values. Wired to the audit
	// queue's Equivocation FIFO by the node binary.
	OnEquivocation func(msgID, hashA, hashB string)

	// OnConsensusReached is invoked the moment a message transitions to
	// Confirmed, with its elected leader and backups, so the leader
	// executor can take over.
	OnConsensusReached func(msgID string, leader string, backups []string)

	// OnExecutionResult is invoked for every observed ExecutionResult,
	// win or lose, so the audit action-log queue can record it.
	OnExecutionResult func(wire.ExecutionResult)

	// OnConfigSync/OnConfigPull/OnConfigPullResponse hand the three
	// config gossip types to package groupconfig, which owns
	// verification and persistence. nil means "drop silently" —
	// acceptable before a node has wired config support.
	OnConfigSync         func(senderNodeID string, payload wire.ConfigSync)
	OnConfigPull         func(senderNodeID string, payload wire.ConfigPull)
	OnConfigPullResponse func(senderNodeID string, payload wire.ConfigPullResponse)
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(self string, store *consensus.Store, nodes *registry.NodeSet, v *verify.Verifier, b *Broadcaster, kp *keys.KeyPair, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		Self:        self,
		Store:       store,
		Nodes:       nodes,
		Verifier:    v,
		Broadcaster: b,
		Keys:        kp,
		Log:         logger,
		Rand:        rand.New(rand.NewSource(1)),
	}
}

// HandleAgentMessage processes a freshly verified SignedMessage this node
// received directly (either from its own Agent or relayed), inserts it
// into the state machine, and broadcasts Seen.
func (d *Dispatcher) HandleAgentMessage(ctx context.Context, msg *wire.SignedMessage, res *verify.Result) error {
	msgID := msg.MessageID()
	leader, backups := consensus.Elect(res.Targets, msg.Sequence)
	now := time.Now()
	d.Store.OnAgentMessage(msgID, msg, res.Targets, leader, backups, now)
	d.checkConsensus(msgID, leader, backups)

	return d.Broadcaster.Broadcast(ctx, wire.MsgSeen, wire.Seen{
		MessageID:    msgID,
		MsgHash:      msg.MessageHash,
		SenderNodeID: d.Self,
	})
}

// HandleEnvelope verifies env's sender signature against the claimed
// peer's registered public key and dispatches its payload by msg_type.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env *wire.Envelope) error {
	node, ok := d.Nodes.Get(env.SenderNodeID)
	if !ok {
		return fmt.Errorf("gossip: unknown sender %q (envelope %s)", env.SenderNodeID, env.EnvelopeID)
	}
	pk, err := hex.DecodeString(node.NodePublicKey)
	if err != nil {
		return fmt.Errorf("gossip: sender %q has malformed public key: %w", env.SenderNodeID, err)
	}
	sig, err := hex.DecodeString(env.SenderSignature)
	if err != nil {
		return fmt.Errorf("gossip: malformed sender_signature: %w", err)
	}
	if !keys.VerifyBytes(pk, env.SignInput(), sig) {
		return fmt.Errorf("gossip: sender_signature does not verify for %q (envelope %s)", env.SenderNodeID, env.EnvelopeID)
	}

	switch env.MsgType {
	case wire.MsgSeen:
		var p wire.Seen
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.handleSeen(ctx, p)

	case wire.MsgPull:
		var p wire.Pull
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.handlePull(ctx, env.SenderNodeID, p)

	case wire.MsgPullResponse:
		var p wire.PullResponse
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.handlePullResponse(p)

	case wire.MsgDecisionVote:
		var p wire.DecisionVote
		if err := env.Decode(&p); err != nil {
			return err
		}
		d.Store.AddVote(p.MessageID, p)
		return nil

	case wire.MsgExecutionResult:
		var p wire.ExecutionResult
		if err := env.Decode(&p); err != nil {
			return err
		}
		return d.handleExecutionResult(p)

	case wire.MsgLeaderTakeover:
		var p wire.LeaderTakeover
		if err := env.Decode(&p); err != nil {
			return err
		}
		if d.Log != nil {
			d.Log.Info("leader takeover observed", "msg_id", p.MessageID, "original_leader", p.OriginalLeader, "backup_rank", p.BackupRank, "envelope_id", env.EnvelopeID)
		}
		return nil

	case wire.MsgHeartbeat:
		return nil

	case wire.MsgConfigSync:
		var p wire.ConfigSync
		if err := env.Decode(&p); err != nil {
			return err
		}
		if d.OnConfigSync != nil {
			d.OnConfigSync(env.SenderNodeID, p)
		}
		return nil

	case wire.MsgConfigPull:
		var p wire.ConfigPull
		if err := env.Decode(&p); err != nil {
			return err
		}
		if d.OnConfigPull != nil {
			d.OnConfigPull(env.SenderNodeID, p)
		}
		return nil

	case wire.MsgConfigPullResponse:
		var p wire.ConfigPullResponse
		if err := env.Decode(&p); err != nil {
			return err
		}
		if d.OnConfigPullResponse != nil {
			d.OnConfigPullResponse(env.SenderNodeID, p)
		}
		return nil

	default:
		return fmt.Errorf("gossip: unknown msg_type %q", env.MsgType)
	}
}

func (d *Dispatcher) handleSeen(ctx context.Context, p wire.Seen) error {
	now := time.Now()
	_, needsPull := d.Store.OnSeen(p.MessageID, p.SenderNodeID, p.MsgHash, now)

	if hashA, hashB, conflict := d.Store.HasConflictingHashes(p.MessageID); conflict {
		if d.OnEquivocation != nil {
			d.OnEquivocation(p.MessageID, hashA, hashB)
		}
	}

	if needsPull && !d.Store.PullTimerStarted(p.MessageID) {
		d.Store.SetPullTimerStarted(p.MessageID)
		d.schedulePull(ctx, p.MessageID, p.SenderNodeID)
		return nil
	}

	if leader, backups, ok := d.Store.GetLeaderBackups(p.MessageID); ok {
		d.checkConsensus(p.MessageID, leader, backups)
	}
	return nil
}

// schedulePull waits a randomized jitter, then asks fromNode for the
// message body, to avoid a synchronized pull storm across every peer
// that missed the original broadcast. It runs in its own goroutine so
// HandleEnvelope's caller is never blocked by the wait.
func (d *Dispatcher) schedulePull(ctx context.Context, msgID, fromNode string) {
	jitter := time.Duration(d.Rand.Int63n(int64(PullJitter) + 1))
	go func() {
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := d.Broadcaster.SendTo(ctx, fromNode, wire.MsgPull, wire.Pull{MessageID: msgID}); err != nil && d.Log != nil {
			d.Log.Warn("pull request failed", "msg_id", msgID, "peer", fromNode, "error", err)
		}
	}()
}

func (d *Dispatcher) handlePull(ctx context.Context, fromNode string, p wire.Pull) error {
	msg, ok := d.Store.GetOriginal(p.MessageID)
	if !ok {
		return nil // we don't have it either; the requester tries another peer
	}
	return d.Broadcaster.SendTo(ctx, fromNode, wire.MsgPullResponse, wire.PullResponse{
		MessageID: p.MessageID,
		Message:   *msg,
	})
}

func (d *Dispatcher) handlePullResponse(p wire.PullResponse) error {
	res, err := d.Verifier.Message(d.Self, &p.Message)
	if err != nil {
		return fmt.Errorf("gossip: pull response failed verification: %w", err)
	}
	leader, backups := consensus.Elect(res.Targets, p.Message.Sequence)
	d.Store.OnAgentMessage(p.MessageID, &p.Message, res.Targets, leader, backups, time.Now())
	d.checkConsensus(p.MessageID, leader, backups)
	return nil
}

func (d *Dispatcher) handleExecutionResult(p wire.ExecutionResult) error {
	if p.Success {
		d.Store.SetCompleted(p.MessageID)
	} else {
		d.Store.SetFailed(p.MessageID)
	}
	if d.OnExecutionResult != nil {
		d.OnExecutionResult(p)
	}
	return nil
}

func (d *Dispatcher) checkConsensus(msgID, leader string, backups []string) {
	reached, _, _ := d.Store.CheckConsensus(msgID, time.Now())
	if reached && d.OnConsensusReached != nil {
		d.OnConsensusReached(msgID, leader, backups)
	}
}
