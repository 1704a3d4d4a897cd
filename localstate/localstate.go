// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package localstate implements the Agent's local quick-path moderation
// state: flood counters, warning tallies, a short-TTL admin cache, and
// duplicate-message fingerprinting. None of this requires consensus —
// it exists purely to let an Agent react to spam in real time while the
// slower signed/multicast/consensus path catches up.
package localstate

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// AdminCacheTTL is how long a chat's admin list is trusted after being
// cached.
const AdminCacheTTL = 5 * time.Minute

// FloodCounterExpiry is how long an idle flood counter survives Cleanup.
const FloodCounterExpiry = 60 * time.Second

// MessageFingerprintExpiry bounds how long a message fingerprint is kept
// for duplicate detection regardless of the caller's window_secs.
const MessageFingerprintExpiry = 5 * time.Minute

type chatUser struct {
	ChatID, UserID int64
}

type floodCounter struct {
	count       uint16
	windowStart time.Time
}

type adminCacheEntry struct {
	adminIDs []int64
	cachedAt time.Time
	ttl      time.Duration
}

type messageFingerprint struct {
	userID   int64
	textHash uint64
	at       time.Time
}

// Store holds one Agent's local moderation state across all bots it
// serves. All methods are safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	floodCounters  map[chatUser]*floodCounter
	warnCounts     map[chatUser]uint8
	adminCache     map[int64]*adminCacheEntry
	recentMessages map[int64][]messageFingerprint

	// Now is overridden in tests for deterministic window math.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		floodCounters:  make(map[chatUser]*floodCounter),
		warnCounts:     make(map[chatUser]uint8),
		adminCache:     make(map[int64]*adminCacheEntry),
		recentMessages: make(map[int64][]messageFingerprint),
		Now:            time.Now,
	}
}

// CheckFlood increments the (chat, user) flood counter and reports
// whether it now exceeds limit within windowSecs. limit == 0 disables
// flood detection entirely.
func (s *Store) CheckFlood(chatID, userID int64, limit, windowSecs uint16) bool {
	if limit == 0 {
		return false
	}
	now := s.Now()
	key := chatUser{chatID, userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.floodCounters[key]
	if !ok {
		c = &floodCounter{windowStart: now}
		s.floodCounters[key] = c
	}

	if now.Sub(c.windowStart) >= time.Duration(windowSecs)*time.Second {
		c.count = 1
		c.windowStart = now
		return false
	}

	c.count++
	return c.count > limit
}

// ResetFlood clears a user's flood counter for a chat.
func (s *Store) ResetFlood(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.floodCounters, chatUser{chatID, userID})
}

// AddWarn increments a user's warning count and returns the new total.
// It saturates at 255 rather than wrapping.
func (s *Store) AddWarn(chatID, userID int64) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chatUser{chatID, userID}
	if s.warnCounts[key] < 255 {
		s.warnCounts[key]++
	}
	return s.warnCounts[key]
}

// RemoveWarn decrements a user's warning count and returns the new
// total. It floors at 0 rather than wrapping.
func (s *Store) RemoveWarn(chatID, userID int64) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chatUser{chatID, userID}
	if s.warnCounts[key] > 0 {
		s.warnCounts[key]--
	}
	return s.warnCounts[key]
}

// ResetWarns clears a user's warning count for a chat.
func (s *Store) ResetWarns(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.warnCounts, chatUser{chatID, userID})
}

// GetWarns returns a user's current warning count for a chat.
func (s *Store) GetWarns(chatID, userID int64) uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warnCounts[chatUser{chatID, userID}]
}

// IsAdminCached reports whether userID is a cached admin of chatID.
// known is false if the cache has no entry for chatID or the entry has
// expired — the caller should then re-fetch the admin list.
func (s *Store) IsAdminCached(chatID, userID int64) (isAdmin, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.adminCache[chatID]
	if !ok {
		return false, false
	}
	if s.Now().Sub(entry.cachedAt) >= entry.ttl {
		return false, false
	}
	for _, id := range entry.adminIDs {
		if id == userID {
			return true, true
		}
	}
	return false, true
}

// SetAdminCache replaces chatID's cached admin list with a fresh
// AdminCacheTTL window.
func (s *Store) SetAdminCache(chatID int64, adminIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminCache[chatID] = &adminCacheEntry{
		adminIDs: adminIDs,
		cachedAt: s.Now(),
		ttl:      AdminCacheTTL,
	}
}

// RecordMessage fingerprints text for (chatID, userID), evicts stale
// fingerprints outside windowSecs, and returns how many times this exact
// user has sent this exact (case-insensitive) text within the window,
// counting the message just recorded.
func (s *Store) RecordMessage(chatID, userID int64, text string, windowSecs uint64) uint32 {
	hash := hashText(text)
	now := s.Now()
	window := time.Duration(windowSecs) * time.Second

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.recentMessages[chatID]
	live := entries[:0]
	for _, fp := range entries {
		if now.Sub(fp.at) < window {
			live = append(live, fp)
		}
	}

	var dupCount uint32
	for _, fp := range live {
		if fp.userID == userID && fp.textHash == hash {
			dupCount++
		}
	}

	live = append(live, messageFingerprint{userID: userID, textHash: hash, at: now})
	s.recentMessages[chatID] = live

	return dupCount + 1
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(text)))
	return h.Sum64()
}

// CleanupExpired removes idle flood counters, expired admin cache
// entries, and message fingerprints older than
// MessageFingerprintExpiry. Intended to run on a periodic ticker.
func (s *Store) CleanupExpired() {
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.floodCounters {
		if now.Sub(c.windowStart) >= FloodCounterExpiry {
			delete(s.floodCounters, key)
		}
	}

	for chatID, entry := range s.adminCache {
		if now.Sub(entry.cachedAt) >= entry.ttl {
			delete(s.adminCache, chatID)
		}
	}

	for chatID, entries := range s.recentMessages {
		live := entries[:0]
		for _, fp := range entries {
			if now.Sub(fp.at) < MessageFingerprintExpiry {
				live = append(live, fp)
			}
		}
		if len(live) == 0 {
			delete(s.recentMessages, chatID)
		} else {
			s.recentMessages[chatID] = live
		}
	}
}
