// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

// Kind names the three pending-audit queues; they double as bbolt
// bucket names.
const (
	KindConfirmation = "confirmations"
	KindActionLog    = "action_logs"
	KindEquivocation = "equivocations"
)

var kinds = []string{KindConfirmation, KindActionLog, KindEquivocation}

// Durable mirrors pending audit entries into a bbolt file so a Node
// restart does not lose evidence still awaiting external submission.
type Durable struct {
	db *bbolt.DB
}

// OpenDurable opens (creating if needed) a bbolt database at path with
// one bucket per audit kind.
func OpenDurable(path string) (*Durable, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: open bbolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, k := range kinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create buckets: %w", err)
	}
	return &Durable{db: db}, nil
}

// Close closes the underlying database.
func (d *Durable) Close() error {
	return d.db.Close()
}

// Append stores record under kind, keyed by an auto-incrementing
// sequence, and returns that sequence.
func (d *Durable) Append(kind string, record []byte) (uint64, error) {
	var id uint64
	err := d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("audit: unknown kind %q", kind)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return b.Put(seqKey(seq), record)
	})
	return id, err
}

// Entry is one durably-stored audit record awaiting submission.
type Entry struct {
	ID     uint64
	Record []byte
}

// Oldest returns up to max entries, oldest-id first, without removing
// them. max <= 0 returns every entry.
func (d *Durable) Oldest(kind string, max int) ([]Entry, error) {
	var out []Entry
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("audit: unknown kind %q", kind)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if max > 0 && len(out) >= max {
				break
			}
			rec := make([]byte, len(v))
			copy(rec, v)
			out = append(out, Entry{ID: binary.BigEndian.Uint64(k), Record: rec})
		}
		return nil
	})
	return out, err
}

// Delete removes a submitted entry.
func (d *Durable) Delete(kind string, id uint64) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("audit: unknown kind %q", kind)
		}
		return b.Delete(seqKey(id))
	})
}

// Count returns how many undelivered entries remain for kind.
func (d *Durable) Count(kind string) (int, error) {
	n := 0
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("audit: unknown kind %q", kind)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
