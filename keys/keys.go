// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keys manages the Ed25519 signing identity every agent and
// node carries.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// KeyPair wraps an Ed25519 seed and its derived public/private halves.
type KeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// PublicHex is the lowercase-hex-encoded public key, as carried on the
// wire in owner_public_key / node_public_key fields.
func (k *KeyPair) PublicHex() string {
	return hex.EncodeToString(k.Public)
}

// Sign signs msg with the private half.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify checks sig against msg for the given hex-encoded public key.
func Verify(pubKeyHex string, msg, sig []byte) (bool, error) {
	pk, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	return VerifyBytes(pk, msg, sig), nil
}

// VerifyBytes checks sig against msg for a raw public key.
func VerifyBytes(pubKey, msg, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pubKey, msg, sig)
}

// LoadOrCreate loads the 32-byte Ed25519 seed from path, or generates and
// persists a new one (mode 0600) if the file does not exist. A key file
// that exists but is the wrong size or unreadable is fatal: the caller
// cannot safely generate a fresh identity out from under an existing,
// possibly-registered owner key.
func LoadOrCreate(path string) (*KeyPair, error) {
	seed, err := os.ReadFile(path)
	if err == nil {
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s: expected %d byte seed, got %d", path, ed25519.SeedSize, len(seed))
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &KeyPair{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}

	seed = make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", path, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// BotIDHash derives the cross-trust-boundary bot identifier: SHA-256 of
// the raw bot token. The token itself never leaves Agent process
// memory.
func BotIDHash(botToken string) [32]byte {
	return sha256.Sum256([]byte(botToken))
}

// BotIDHashHex is BotIDHash, hex-encoded, as carried on the wire.
func BotIDHashHex(botToken string) string {
	h := BotIDHash(botToken)
	return hex.EncodeToString(h[:])
}
