// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/selection"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/seqwindow"
	"github.com/luxfi/botconsensus/signer"
	"github.com/luxfi/botconsensus/wire"
)

type fixture struct {
	v         *Verifier
	kp        *keys.KeyPair
	botIDHash string
	nodeIDs   []string
}

func newFixture(t *testing.T, nodeIDs []string) *fixture {
	t.Helper()
	dir := t.TempDir()
	kp, err := keys.LoadOrCreate(filepath.Join(dir, "owner_key.bin"))
	require.NoError(t, err)
	botIDHash := keys.BotIDHashHex("tok")

	bots := registry.NewBotRegistry()
	bots.Upsert(registry.BotRecord{BotIDHash: botIDHash, OwnerPublicKey: kp.PublicHex(), Active: true})

	nodes := registry.NewNodeSet()
	for _, id := range nodeIDs {
		nodes.Upsert(registry.Node{NodeID: id, Status: registry.StatusActive})
	}

	return &fixture{
		v:         New(bots, nodes, seqwindow.New()),
		kp:        kp,
		botIDHash: botIDHash,
		nodeIDs:   nodeIDs,
	}
}

func (f *fixture) sign(t *testing.T, seq uint64, raw []byte, ts int64) *wire.SignedMessage {
	t.Helper()
	dir := t.TempDir()
	sc, err := sequence.Open(filepath.Join(dir, "sequence.bin"))
	require.NoError(t, err)
	defer sc.Close()
	for i := uint64(0); i < seq; i++ {
		_, _ = sc.Next()
	}
	s := signer.New(f.kp, f.botIDHash, sc, nil)
	s.Now = func() int64 { return ts }
	msg, err := s.Sign(raw, "telegram")
	require.NoError(t, err)
	return msg
}

func targetNodeFor(t *testing.T, f *fixture, msg *wire.SignedMessage) string {
	t.Helper()
	_, _, msgHash, _, err := msg.DecodeHexFields()
	require.NoError(t, err)
	var arr [32]byte
	copy(arr[:], msgHash)
	k := selection.K(len(f.nodeIDs))
	targets := selection.Targets(f.nodeIDs, arr, msg.Sequence, k)
	require.NotEmpty(t, targets)
	return targets[0]
}

func TestVerifyAcceptsValidMessageForTarget(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c"})
	msg := f.sign(t, 0, []byte(`{"x":1}`), time.Now().Unix())
	target := targetNodeFor(t, f, msg)

	res, err := f.v.Message(target, msg)
	require.NoError(t, err)
	require.Contains(t, res.Targets, target)
}

func TestVerifyRejectsStale(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c"})
	msg := f.sign(t, 0, []byte(`{"x":1}`), time.Now().Add(-2*time.Hour).Unix())
	target := targetNodeFor(t, f, msg)

	_, err := f.v.Message(target, msg)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ReasonStale, verr.Reason)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c"})
	msg := f.sign(t, 0, []byte(`{"x":1}`), time.Now().Unix())
	target := targetNodeFor(t, f, msg)
	msg.Sequence = 99 // mutate a signed field (P2)

	_, err := f.v.Message(target, msg)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ReasonBadSignature, verr.Reason)
}

func TestVerifyRejectsUnknownBot(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c"})
	f.botIDHash = keys.BotIDHashHex("unregistered-token")
	msg := f.sign(t, 0, []byte(`{"x":1}`), time.Now().Unix())
	target := targetNodeFor(t, f, msg)

	_, err := f.v.Message(target, msg)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ReasonBotUnknown, verr.Reason)
}

func TestVerifyRejectsNonTarget(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c", "node_d", "node_e"})
	msg := f.sign(t, 0, []byte(`{"x":1}`), time.Now().Unix())

	// Find a node NOT in the target set.
	_, _, msgHash, _, err := msg.DecodeHexFields()
	require.NoError(t, err)
	var arr [32]byte
	copy(arr[:], msgHash)
	k := selection.K(len(f.nodeIDs))
	targets := selection.Targets(f.nodeIDs, arr, msg.Sequence, k)
	targetSet := map[string]bool{}
	for _, id := range targets {
		targetSet[id] = true
	}
	var nonTarget string
	for _, id := range f.nodeIDs {
		if !targetSet[id] {
			nonTarget = id
			break
		}
	}
	require.NotEmpty(t, nonTarget)

	_, err = f.v.Message(nonTarget, msg)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ReasonNotTarget, verr.Reason)
}

func TestVerifyRejectsReplay(t *testing.T) {
	f := newFixture(t, []string{"node_a", "node_b", "node_c"})
	msg1 := f.sign(t, 20, []byte(`{"x":1}`), time.Now().Unix())
	target := targetNodeFor(t, f, msg1)
	_, err := f.v.Message(target, msg1)
	require.NoError(t, err)

	msg2 := f.sign(t, 5, []byte(`{"x":2}`), time.Now().Unix())
	_, err = f.v.Message(target, msg2)
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ReasonReplay, verr.Reason)
}
