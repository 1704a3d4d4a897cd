// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer implements the Agent's canonicalization and signing of
// inbound platform webhook payloads into wire.SignedMessage envelopes.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/botconsensus/errkind"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/wire"
)

// Clock returns the current time as unix seconds. Tests substitute a
// fixed clock; production uses time.Now.
type Clock func() int64

func systemClock() int64 { return time.Now().Unix() }

// Signer turns raw webhook bytes into a signed, canonical wire envelope.
// It owns no mutable state beyond the injected key and sequence counter;
// both are handed to it by the caller rather than constructed inside.
type Signer struct {
	Key       *keys.KeyPair
	BotIDHash string // hex
	Sequence  *sequence.Counter
	Log       log.Logger
	Now       Clock
}

// New constructs a Signer. A nil clock defaults to time.Now.
func New(key *keys.KeyPair, botIDHashHex string, seq *sequence.Counter, logger log.Logger) *Signer {
	return &Signer{Key: key, BotIDHash: botIDHashHex, Sequence: seq, Log: logger, Now: systemClock}
}

// Sign hashes, sequences, and signs raw into a wire.SignedMessage. raw
// is the exact bytes received from the webhook; platform tags which
// chat platform it came from.
//
// Contract (a): the signature binds h = SHA256(raw), never a
// re-serialization of the parsed JSON, so a reserializer downstream
// cannot alter what the signature covers.
//
// Contract (b): no two distinct messages may share a sequence. Sequence
// exhaustion is obtained from sequence.Counter, which is itself fsync'd
// before this function ever uses the value (P1). If persisting the
// counter fails, Sign returns an error classified Fatal by the caller —
// this function never emits two signatures for the same sequence.
func (s *Signer) Sign(raw []byte, platform string) (*wire.SignedMessage, error) {
	sum := sha256.Sum256(raw)
	hHex := hex.EncodeToString(sum[:])

	seq, err := s.Sequence.Next()
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, fmt.Errorf("reserve sequence: %w", err))
	}

	t := s.now()

	botIDHash, err := hex.DecodeString(s.BotIDHash)
	if err != nil {
		return nil, fmt.Errorf("decode bot_id_hash: %w", err)
	}

	signInput := wire.SignInput(s.Key.Public, botIDHash, seq, t, sum[:])
	sig := s.Key.Sign(signInput)

	var evt json.RawMessage = append(json.RawMessage(nil), raw...)

	msg := &wire.SignedMessage{
		OwnerPublicKey: s.Key.PublicHex(),
		BotIDHash:      s.BotIDHash,
		Sequence:       seq,
		Timestamp:      t,
		MessageHash:    hHex,
		PlatformEvent:  evt,
		Platform:       platform,
		OwnerSignature: hex.EncodeToString(sig),
	}

	if s.Log != nil {
		s.Log.Debug("signed message", "message_id", msg.MessageID(), "bot_id_hash", s.BotIDHash, "sequence", seq)
	}
	return msg, nil
}

func (s *Signer) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return systemClock()
}
