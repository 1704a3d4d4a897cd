// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package audit

import (
	"context"

	"github.com/luxfi/botconsensus/log"
)

// ChainSubmitter is the external, write-only on-chain audit sink.
// On-chain submission is out of scope here and modeled as an interface
// boundary only; NoopSubmitter is the logging stand-in used until a
// concrete chain client is wired.
type ChainSubmitter interface {
	Submit(ctx context.Context, kind string, record []byte) error
}

// NoopSubmitter logs every record it receives and always succeeds.
type NoopSubmitter struct {
	Log log.Logger
}

// Submit implements ChainSubmitter.
func (n *NoopSubmitter) Submit(_ context.Context, kind string, record []byte) error {
	if n.Log != nil {
		n.Log.Info("audit record submitted (noop)", "kind", kind, "record", string(record))
	}
	return nil
}
