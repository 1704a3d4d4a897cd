// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package action

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiresConsensus(t *testing.T) {
	cases := []struct {
		t    Type
		want bool
	}{
		{NoAction, false},
		{Ban, true},
		{Mute, true},
		{ApproveJoinRequest, true},
		{Pin, true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.t.RequiresConsensus(), c.t)
	}
}

func TestStringIsWireValue(t *testing.T) {
	require.Equal(t, "ban", Ban.String())
	require.Equal(t, "no_action", NoAction.String())
}
