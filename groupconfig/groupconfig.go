// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package groupconfig owns the Node side of group-config distribution:
// verifying an owner-signed SignedGroupConfig against the bot registry,
// enforcing version monotonicity, caching the result in memory, and
// persisting it to a per-bot JSON file so a restarted node can recover
// without waiting on gossip.
package groupconfig

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/wire"
)

// Store caches the latest accepted SignedGroupConfig per bot and mirrors
// every accepted update to a JSON file under dir/<bot_id_hash>.json.
type Store struct {
	mu      sync.RWMutex
	configs map[string]wire.SignedGroupConfig
	dir     string
	bots    *registry.BotRegistry
}

// New returns a Store that persists under dir/configs and validates
// signer identity against bots.
func New(dir string, bots *registry.BotRegistry) *Store {
	return &Store{
		configs: make(map[string]wire.SignedGroupConfig),
		dir:     filepath.Join(dir, "configs"),
		bots:    bots,
	}
}

// Get returns the cached config for a bot, if any.
func (s *Store) Get(botIDHash string) (wire.SignedGroupConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[botIDHash]
	return c, ok
}

// Version returns the cached config's version, or 0 if none is cached.
// Apply's version-monotonicity check compares new configs against this.
func (s *Store) Version(botIDHash string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[botIDHash].Config.Version
}

// BotIDs returns every bot with a cached config.
func (s *Store) BotIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	return ids
}

// Apply runs the four verification steps a group config update must
// pass against signed and, on success, caches it and persists it to
// disk. The bot_id_hash comes from signed.Config itself.
func (s *Store) Apply(signed wire.SignedGroupConfig) error {
	botIDHash := signed.Config.BotIDHash

	// 1. The bot is registered and active.
	rec, ok := s.bots.Lookup(botIDHash)
	if !ok || !rec.Active {
		return fmt.Errorf("groupconfig: bot %q not registered or inactive", botIDHash)
	}

	// 2. signer_public_key == registry.owner_public_key(bot_id_hash).
	if signed.SignerPublicKey != rec.OwnerPublicKey {
		return fmt.Errorf("groupconfig: signer public key does not match bot owner")
	}

	// 3. Ed25519 signature over the canonical serialization of config.
	canonical, err := signed.Config.Canonical()
	if err != nil {
		return fmt.Errorf("groupconfig: canonicalize config: %w", err)
	}
	sig, err := hex.DecodeString(signed.Signature)
	if err != nil {
		return fmt.Errorf("groupconfig: malformed signature hex: %w", err)
	}
	ok, err = keys.Verify(signed.SignerPublicKey, canonical, sig)
	if err != nil {
		return fmt.Errorf("groupconfig: decode signer public key: %w", err)
	}
	if !ok {
		return fmt.Errorf("groupconfig: signature does not verify")
	}

	// 4. config.version > current.version.
	s.mu.Lock()
	if existing, have := s.configs[botIDHash]; have && signed.Config.Version <= existing.Config.Version {
		s.mu.Unlock()
		return fmt.Errorf("groupconfig: version %d <= current %d", signed.Config.Version, existing.Config.Version)
	}
	s.configs[botIDHash] = signed
	s.mu.Unlock()

	if err := s.persist(botIDHash, signed); err != nil {
		return fmt.Errorf("groupconfig: persist: %w", err)
	}
	return nil
}

func (s *Store) persist(botIDHash string, signed wire.SignedGroupConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, botIDHash+".json"), b, 0o644)
}

// LoadFromDisk restores every *.json file under dir/configs into the
// in-memory cache, for use on node startup before gossip has caught the
// node up. ConfigPull/ConfigPullResponse handle catching up the rest of
// the way once the node is online; this handles the local-disk half.
func (s *Store) LoadFromDisk() error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var signed wire.SignedGroupConfig
		if err := json.Unmarshal(b, &signed); err != nil {
			continue
		}
		s.mu.Lock()
		s.configs[signed.Config.BotIDHash] = signed
		s.mu.Unlock()
	}
	return nil
}

// HandleConfigSync is wired to gossip.Dispatcher.OnConfigSync: it
// applies the gossiped config and silently drops a rejected one (a
// stale or forged sync should never propagate further, but it is not
// this node's place to punish the sender for it).
func (s *Store) HandleConfigSync(_ string, p wire.ConfigSync) {
	_ = s.Apply(p.Config)
}

// HandleConfigPull is wired to gossip.Dispatcher.OnConfigPull; reply is
// the caller's responsibility (it needs the Broadcaster to unicast
// back), so this just looks up what to send.
func (s *Store) HandleConfigPull(botIDHash string) (wire.ConfigPullResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	signed, ok := s.configs[botIDHash]
	if !ok {
		return wire.ConfigPullResponse{}, false
	}
	return wire.ConfigPullResponse{BotIDHash: botIDHash, Config: signed}, true
}

// HandleConfigPullResponse is wired to gossip.Dispatcher.OnConfigPullResponse.
func (s *Store) HandleConfigPullResponse(_ string, p wire.ConfigPullResponse) {
	_ = s.Apply(p.Config)
}
