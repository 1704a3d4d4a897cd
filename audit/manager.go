// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/luxfi/botconsensus/log"
)

// FlushInterval is how often the Manager's flusher attempts to drain
// durable entries to the ChainSubmitter.
const FlushInterval = 5 * time.Second

// FlushBatchSize bounds how many entries one flush pass submits per
// kind, so a large backlog does not starve the other two queues.
const FlushBatchSize = 100

// Manager owns the three named audit queues: in-memory for fast reads
// by status/metrics endpoints, mirrored into a bbolt-backed Durable so
// a Node restart does not lose entries still awaiting external
// submission.
type Manager struct {
	Confirmations *Queue[Confirmation]
	ActionLogs    *Queue[ActionLog]
	Equivocations *Queue[Equivocation]

	durable   *Durable
	submitter ChainSubmitter
	log       log.Logger
}

// NewManager constructs a Manager backed by a bbolt file at dbPath.
func NewManager(dbPath string, submitter ChainSubmitter, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	d, err := OpenDurable(dbPath)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Confirmations: NewQueue[Confirmation](KindConfirmation, QueueCap, logger),
		ActionLogs:    NewQueue[ActionLog](KindActionLog, QueueCap, logger),
		Equivocations: NewQueue[Equivocation](KindEquivocation, QueueCap, logger),
		durable:       d,
		submitter:     submitter,
		log:           logger,
	}, nil
}

// Close closes the durable store.
func (m *Manager) Close() error {
	return m.durable.Close()
}

// PushConfirmation records a message reaching M-of-K consensus.
func (m *Manager) PushConfirmation(c Confirmation) {
	m.Confirmations.Push(c)
	m.mirror(KindConfirmation, c)
}

// PushActionLog records an execution outcome, leader-dispatched or
// local quick-path.
func (m *Manager) PushActionLog(a ActionLog) {
	m.ActionLogs.Push(a)
	m.mirror(KindActionLog, a)
}

// PushEquivocation records a detected conflicting-hash attestation.
func (m *Manager) PushEquivocation(e Equivocation) {
	m.Equivocations.Push(e)
	m.mirror(KindEquivocation, e)
}

func (m *Manager) mirror(kind string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		m.log.Error("audit: marshal record for durable mirror", "kind", kind, "error", err)
		return
	}
	if _, err := m.durable.Append(kind, b); err != nil {
		m.log.Error("audit: durable append failed", "kind", kind, "error", err)
	}
}

// RunFlusher drains durable entries to the ChainSubmitter on a ticker
// until ctx is cancelled. Each entry is retried with exponential
// backoff bounded only by ctx: there is no retry count and no elapsed-
// time limit, so a failing submission is retried until it succeeds or
// ctx is cancelled.
func (m *Manager) RunFlusher(ctx context.Context) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range kinds {
				m.flushKind(ctx, kind)
			}
		}
	}
}

func (m *Manager) flushKind(ctx context.Context, kind string) {
	entries, err := m.durable.Oldest(kind, FlushBatchSize)
	if err != nil {
		m.log.Error("audit: read durable entries failed", "kind", kind, "error", err)
		return
	}
	for _, e := range entries {
		op := func() error {
			return m.submitter.Submit(ctx, kind, e.Record)
		}
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = 0 // never stop on elapsed time; only ctx ends the retries
		bo := backoff.WithContext(eb, ctx)
		if err := backoff.Retry(op, bo); err != nil {
			// ctx was cancelled mid-retry; stop this pass, the next tick
			// (or process restart) picks the entry back up from bbolt.
			return
		}
		if err := m.durable.Delete(kind, e.ID); err != nil {
			m.log.Error("audit: delete submitted durable entry failed", "kind", kind, "id", e.ID, "error", err)
		}
	}
}
