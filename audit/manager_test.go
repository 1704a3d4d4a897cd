// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/botconsensus/log"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	records  [][]byte
	kinds    []string
	failNext int
}

func (f *fakeSubmitter) Submit(_ context.Context, kind string, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("submit failed")
	}
	f.kinds = append(f.kinds, kind)
	f.records = append(f.records, record)
	return nil
}

func newTestManager(t *testing.T, sub ChainSubmitter) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "audit.db"), sub, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPushConfirmationMirrorsToDurable(t *testing.T) {
	m := newTestManager(t, &NoopSubmitter{})
	m.PushConfirmation(Confirmation{MessageID: "m1", Leader: "node_a", At: time.Now()})

	require.Equal(t, 1, m.Confirmations.Len())
	n, err := m.durable.Count(KindConfirmation)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPushActionLogMirrorsToDurable(t *testing.T) {
	m := newTestManager(t, &NoopSubmitter{})
	m.PushActionLog(ActionLog{MessageID: "m1", Success: true, At: time.Now()})

	n, err := m.durable.Count(KindActionLog)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPushEquivocationMirrorsToDurable(t *testing.T) {
	m := newTestManager(t, &NoopSubmitter{})
	m.PushEquivocation(Equivocation{MessageID: "m1", HashA: "a", HashB: "b", At: time.Now()})

	n, err := m.durable.Count(KindEquivocation)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestFlushKindSubmitsAndDeletes(t *testing.T) {
	sub := &fakeSubmitter{}
	m := newTestManager(t, sub)
	m.PushConfirmation(Confirmation{MessageID: "m1"})

	m.flushKind(context.Background(), KindConfirmation)

	sub.mu.Lock()
	require.Len(t, sub.kinds, 1)
	require.Equal(t, KindConfirmation, sub.kinds[0])
	sub.mu.Unlock()

	n, err := m.durable.Count(KindConfirmation)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFlushKindRetriesOnFailureThenSucceeds(t *testing.T) {
	sub := &fakeSubmitter{failNext: 1}
	m := newTestManager(t, sub)
	m.PushActionLog(ActionLog{MessageID: "m1"})

	m.flushKind(context.Background(), KindActionLog)

	n, err := m.durable.Count(KindActionLog)
	require.NoError(t, err)
	require.Equal(t, 0, n, "entry should be deleted once the retried submit succeeds")
}

func TestFlushKindLeavesEntryOnContextCancellation(t *testing.T) {
	sub := &fakeSubmitter{failNext: 1000}
	m := newTestManager(t, sub)
	m.PushEquivocation(Equivocation{MessageID: "m1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.flushKind(ctx, KindEquivocation)

	n, err := m.durable.Count(KindEquivocation)
	require.NoError(t, err)
	require.Equal(t, 1, n, "a cancelled retry must leave the entry for the next flush pass")
}
