// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFallsBackToDefaultPlatform(t *testing.T) {
	r := NewRegistry(NewTelegram(), NewDiscord())

	a, err := r.Get("")
	require.NoError(t, err)
	require.Equal(t, DefaultPlatform, a.Name())

	a, err = r.Get("discord")
	require.NoError(t, err)
	require.Equal(t, "discord", a.Name())
}

func TestRegistryUnknownPlatform(t *testing.T) {
	r := NewRegistry(NewTelegram())
	_, err := r.Get("matrix")
	require.Error(t, err)
}
