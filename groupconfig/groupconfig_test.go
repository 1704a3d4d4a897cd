// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package groupconfig

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/wire"
)

func newFixtureBots(t *testing.T, botIDHash string, kp *keys.KeyPair) *registry.BotRegistry {
	t.Helper()
	bots := registry.NewBotRegistry()
	bots.Upsert(registry.BotRecord{BotIDHash: botIDHash, OwnerPublicKey: kp.PublicHex(), Active: true})
	return bots
}

func signConfig(t *testing.T, kp *keys.KeyPair, cfg wire.GroupConfig) wire.SignedGroupConfig {
	t.Helper()
	canonical, err := cfg.Canonical()
	require.NoError(t, err)
	sig := kp.Sign(canonical)
	return wire.SignedGroupConfig{
		Config:          cfg,
		Signature:       hex.EncodeToString(sig),
		SignerPublicKey: kp.PublicHex(),
	}
}

func newOwnerKey(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.LoadOrCreate(filepath.Join(t.TempDir(), "owner_key.bin"))
	require.NoError(t, err)
	return kp
}

func TestApplySignedConfigSuccess(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	cfg := wire.GroupConfig{BotIDHash: "bot_abc", Version: 1, WelcomeText: "Welcome!"}
	signed := signConfig(t, owner, cfg)

	require.NoError(t, s.Apply(signed))
	require.EqualValues(t, 1, s.Version("bot_abc"))

	stored, ok := s.Get("bot_abc")
	require.True(t, ok)
	require.Equal(t, "Welcome!", stored.Config.WelcomeText)
}

func TestApplyRejectsUnknownBot(t *testing.T) {
	owner := newOwnerKey(t)
	bots := registry.NewBotRegistry()
	s := New(t.TempDir(), bots)

	signed := signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_unknown", Version: 1})
	err := s.Apply(signed)
	require.Error(t, err)
}

func TestApplyRejectsInactiveBot(t *testing.T) {
	owner := newOwnerKey(t)
	bots := registry.NewBotRegistry()
	bots.Upsert(registry.BotRecord{BotIDHash: "bot_abc", OwnerPublicKey: owner.PublicHex(), Active: false})
	s := New(t.TempDir(), bots)

	signed := signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})
	require.Error(t, s.Apply(signed))
}

func TestApplyRejectsWrongSigner(t *testing.T) {
	owner := newOwnerKey(t)
	impostor := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	signed := signConfig(t, impostor, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})
	err := s.Apply(signed)
	require.Error(t, err)
}

func TestApplyRejectsBadSignature(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	signed := signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})
	signed.Signature = hex.EncodeToString(make([]byte, 64))

	err := s.Apply(signed)
	require.Error(t, err)
}

func TestApplyVersionMustIncrease(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	require.NoError(t, s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})))

	// Same version is rejected.
	err := s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1}))
	require.Error(t, err)

	// Lower version is rejected.
	err = s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 0}))
	require.Error(t, err)

	// Higher version is accepted.
	require.NoError(t, s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 2})))
	require.EqualValues(t, 2, s.Version("bot_abc"))
}

func TestPersistAndLoadFromDisk(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	dir := t.TempDir()
	s := New(dir, bots)

	signed := signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 5, WelcomeText: "hi"})
	require.NoError(t, s.Apply(signed))

	_, err := filepath.Glob(filepath.Join(dir, "configs", "bot_abc.json"))
	require.NoError(t, err)

	s2 := New(dir, bots)
	require.EqualValues(t, 0, s2.Version("bot_abc")) // not loaded yet
	require.NoError(t, s2.LoadFromDisk())
	require.EqualValues(t, 5, s2.Version("bot_abc"))

	stored, ok := s2.Get("bot_abc")
	require.True(t, ok)
	require.Equal(t, "hi", stored.Config.WelcomeText)
}

func TestLoadFromDiskMissingDirIsNotError(t *testing.T) {
	bots := registry.NewBotRegistry()
	s := New(t.TempDir(), bots)
	require.NoError(t, s.LoadFromDisk())
}

func TestBotIDsListsCachedConfigs(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	require.Empty(t, s.BotIDs())

	require.NoError(t, s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})))
	ids := s.BotIDs()
	require.Len(t, ids, 1)
	require.Contains(t, ids, "bot_abc")
}

func TestHandleConfigPullReturnsCachedConfig(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	_, ok := s.HandleConfigPull("bot_abc")
	require.False(t, ok)

	require.NoError(t, s.Apply(signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})))

	resp, ok := s.HandleConfigPull("bot_abc")
	require.True(t, ok)
	require.Equal(t, "bot_abc", resp.BotIDHash)
	require.EqualValues(t, 1, resp.Config.Config.Version)
}

func TestHandleConfigSyncAppliesAndDropsInvalid(t *testing.T) {
	owner := newOwnerKey(t)
	impostor := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	s.HandleConfigSync("peer_a", wire.ConfigSync{Config: signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 1})})
	require.EqualValues(t, 1, s.Version("bot_abc"))

	// An invalid sync is dropped, not panicked on.
	require.NotPanics(t, func() {
		s.HandleConfigSync("peer_a", wire.ConfigSync{Config: signConfig(t, impostor, wire.GroupConfig{BotIDHash: "bot_abc", Version: 2})})
	})
	require.EqualValues(t, 1, s.Version("bot_abc"))
}

func TestHandleConfigPullResponseApplies(t *testing.T) {
	owner := newOwnerKey(t)
	bots := newFixtureBots(t, "bot_abc", owner)
	s := New(t.TempDir(), bots)

	signed := signConfig(t, owner, wire.GroupConfig{BotIDHash: "bot_abc", Version: 3})
	s.HandleConfigPullResponse("peer_a", wire.ConfigPullResponse{BotIDHash: "bot_abc", Config: signed})
	require.EqualValues(t, 3, s.Version("bot_abc"))
}
