// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package platform

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/botconsensus/action"
)

// Decision is the result of DetermineAction: which action.Type to take,
// against which chat/group, with which parameters.
type Decision struct {
	Action action.Type
	ChatID int64
	Params map[string]any
}

// Adapter implements platform-specific event parsing and action
// determination; every platform an Agent serves registers one. Name
// must match the wire.SignedMessage.platform discriminant.
type Adapter interface {
	Name() string
	ParseEvent(raw json.RawMessage) (*Event, bool)
	DetermineAction(evt *Event) Decision
}

// DefaultPlatform is the compatibility default when
// wire.SignedMessage.Platform is empty.
const DefaultPlatform = "telegram"

// Registry dispatches to an Adapter by name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by
// Adapter.Name.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for name, falling back to DefaultPlatform when
// name is empty.
func (r *Registry) Get(name string) (Adapter, error) {
	if name == "" {
		name = DefaultPlatform
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("platform: no adapter registered for %q", name)
	}
	return a, nil
}
