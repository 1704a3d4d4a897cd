// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/botconsensus/errkind"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/wire"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	dir := t.TempDir()
	kp, err := keys.LoadOrCreate(filepath.Join(dir, "owner_key.bin"))
	require.NoError(t, err)
	seq, err := sequence.Open(filepath.Join(dir, "sequence.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = seq.Close() })
	botIDHash := keys.BotIDHashHex("test-bot-token")
	return New(kp, botIDHash, seq, log.NewNop())
}

func TestSignBindsRawBytes(t *testing.T) {
	s := newTestSigner(t)
	raw := []byte(`{"update_id":1,"message":{"text":"hello"}}`)

	msg, err := s.Sign(raw, "telegram")
	require.NoError(t, err)

	sum := sha256.Sum256(raw)
	require.Equal(t, hex.EncodeToString(sum[:]), msg.MessageHash)
	require.Equal(t, uint64(0), msg.Sequence)
	require.Equal(t, "telegram", msg.Platform)
}

func TestSignSequenceMonotonic(t *testing.T) {
	s := newTestSigner(t)
	m1, err := s.Sign([]byte(`{"a":1}`), "telegram")
	require.NoError(t, err)
	m2, err := s.Sign([]byte(`{"a":2}`), "telegram")
	require.NoError(t, err)
	require.Equal(t, uint64(0), m1.Sequence)
	require.Equal(t, uint64(1), m2.Sequence)
	require.NotEqual(t, m1.MessageHash, m2.MessageHash)
}

func TestSignatureVerifiesAndRejectsTamper(t *testing.T) {
	s := newTestSigner(t)
	msg, err := s.Sign([]byte(`{"a":1}`), "telegram")
	require.NoError(t, err)

	pk, botIDHash, msgHash, sig, err := msg.DecodeHexFields()
	require.NoError(t, err)
	input := wire.SignInput(pk, botIDHash, msg.Sequence, msg.Timestamp, msgHash)
	require.True(t, keys.VerifyBytes(pk, input, sig))

	// P2: mutating any covered field invalidates the signature.
	tampered := wire.SignInput(pk, botIDHash, msg.Sequence+1, msg.Timestamp, msgHash)
	require.False(t, keys.VerifyBytes(pk, tampered, sig))
}

func TestMessageIDFormat(t *testing.T) {
	s := newTestSigner(t)
	msg, err := s.Sign([]byte(`{"a":1}`), "telegram")
	require.NoError(t, err)
	require.Equal(t, wire.MessageID(s.BotIDHash, 0), msg.MessageID())

	expectPrefix := s.BotIDHash[:16]
	require.Contains(t, msg.MessageID(), expectPrefix+"_0")
}

func TestSignReturnsErrorWhenSequencePersistFails(t *testing.T) {
	s := newTestSigner(t)
	require.NoError(t, s.Sequence.Close())
	_, err := s.Sign([]byte(`{"a":1}`), "telegram")
	require.Error(t, err)
	require.Equal(t, errkind.Fatal, errkind.KindOf(err))
}
