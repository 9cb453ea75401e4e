// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package authority

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestDeriveDeterministic(t *testing.T) {
	require := require.New(t)

	componentID := ids.GenerateTestID()
	require.Equal(Release(componentID), Release(componentID))

	other := ids.GenerateTestID()
	require.NotEqual(Release(componentID), Release(other))

	// Different tags over the same seed yield different identities.
	require.NotEqual(Release(componentID), Escrow(componentID))
	require.NotEqual(Escrow(componentID), BurnVault(componentID))
}

func TestDeriveNonEmpty(t *testing.T) {
	require := require.New(t)

	require.NotEqual(ids.ShortEmpty, Release(ids.Empty))
	require.NotEqual(ids.ShortEmpty, Escrow(ids.Empty))
}
