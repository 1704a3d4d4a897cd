// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDurable(t *testing.T) *Durable {
	t.Helper()
	d, err := OpenDurable(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDurableAppendAndOldest(t *testing.T) {
	d := newTestDurable(t)

	id1, err := d.Append(KindConfirmation, []byte(`{"a":1}`))
	require.NoError(t, err)
	id2, err := d.Append(KindConfirmation, []byte(`{"a":2}`))
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	entries, err := d.Oldest(KindConfirmation, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, id1, entries[0].ID)
	require.Equal(t, `{"a":1}`, string(entries[0].Record))
}

func TestDurableOldestRespectsMax(t *testing.T) {
	d := newTestDurable(t)
	for i := 0; i < 5; i++ {
		_, err := d.Append(KindActionLog, []byte("x"))
		require.NoError(t, err)
	}
	entries, err := d.Oldest(KindActionLog, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDurableDeleteRemovesEntry(t *testing.T) {
	d := newTestDurable(t)
	id, err := d.Append(KindEquivocation, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, d.Delete(KindEquivocation, id))

	entries, err := d.Oldest(KindEquivocation, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDurableCount(t *testing.T) {
	d := newTestDurable(t)
	n, err := d.Count(KindConfirmation)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = d.Append(KindConfirmation, []byte("x"))
	require.NoError(t, err)
	n, err = d.Count(KindConfirmation)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDurableUnknownKindErrors(t *testing.T) {
	d := newTestDurable(t)
	_, err := d.Append("bogus", []byte("x"))
	require.Error(t, err)
}
