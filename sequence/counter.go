// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sequence implements the Agent's crash-safe monotonic sequence
// counter, handed to the signer as an injected dependency rather than
// constructed inside it.
package sequence

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// Counter persists a strictly-increasing uint64 to disk, fsync'd before
// the value it hands out is ever used to sign a message: once a
// sequence s is signed, no other message may ever be signed at s.
type Counter struct {
	mu   sync.Mutex
	path string
	file *os.File
	next uint64
}

// Open loads the persisted counter from path, creating it (starting at
// 0) if it does not exist. The file is kept open for the lifetime of the
// Counter so every Next() can fsync without reopening.
func Open(path string) (*Counter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open sequence file %s: %w", path, err)
	}

	var buf [8]byte
	n, err := f.ReadAt(buf[:], 0)
	var next uint64
	if err != nil && n == 0 {
		next = 0
	} else if err != nil && n < 8 {
		f.Close()
		return nil, fmt.Errorf("sequence file %s truncated", path)
	} else {
		next = binary.LittleEndian.Uint64(buf[:])
	}

	return &Counter{path: path, file: f, next: next}, nil
}

// Next atomically reserves and persists the next sequence number,
// fsync'ing before returning it. A failure to persist is fatal: the
// caller must abort rather than risk signing at a sequence that was
// never durably claimed.
func (c *Counter) Next() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.next
	c.next++

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.next)
	if _, err := c.file.WriteAt(buf[:], 0); err != nil {
		c.next = s // roll back the in-memory reservation; the write never landed
		return 0, fmt.Errorf("persist sequence: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		c.next = s
		return 0, fmt.Errorf("fsync sequence: %w", err)
	}
	return s, nil
}

// Peek returns the next sequence number that will be issued, without
// reserving it. Useful for status/health reporting.
func (c *Counter) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Close fsyncs and releases the underlying file handle.
func (c *Counter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.file.Sync()
	return c.file.Close()
}
