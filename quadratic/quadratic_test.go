// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quadratic

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqrtKnownValues(t *testing.T) {
	require := require.New(t)

	require.Zero(Sqrt(0))
	require.Equal(uint64(1), Sqrt(1))
	require.Equal(uint64(1), Sqrt(2))
	require.Equal(uint64(1), Sqrt(3))
	require.Equal(uint64(2), Sqrt(4))
	require.Equal(uint64(3), Sqrt(9))
	require.Equal(uint64(10), Sqrt(100))
	require.Equal(uint64(1000), Sqrt(1_000_000))
	require.Equal(uint64(100_000), Sqrt(10_000_000_000))
}

// sqrtProperty checks Sqrt(x)^2 <= x < (Sqrt(x)+1)^2 without overflowing.
func sqrtProperty(t *testing.T, x uint64) {
	t.Helper()
	r := Sqrt(x)
	require.LessOrEqual(t, r, uint64(math.MaxUint32), "sqrt of u64 fits in 32 bits: x=%d r=%d", x, r)
	require.LessOrEqual(t, r*r, x, "x=%d r=%d", x, r)
	if r < math.MaxUint32 {
		require.Greater(t, (r+1)*(r+1), x, "x=%d r=%d", x, r)
	}
}

func TestSqrtProperty(t *testing.T) {
	edges := []uint64{
		0, 1, 2, 3, 4, 5,
		math.MaxUint8, math.MaxUint16, math.MaxUint32,
		math.MaxUint32 + 1,
		math.MaxUint64 - 1, math.MaxUint64,
	}
	for _, x := range edges {
		sqrtProperty(t, x)
	}

	// Perfect squares and their neighbors across the whole range.
	for _, r := range []uint64{2, 7, 1 << 16, 1<<32 - 1, 3_037_000_499} {
		sq := r * r
		sqrtProperty(t, sq-1)
		sqrtProperty(t, sq)
		sqrtProperty(t, sq+1)
		require.Equal(t, r, Sqrt(sq))
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100_000; i++ {
		sqrtProperty(t, rng.Uint64())
	}
}

func TestQuorum(t *testing.T) {
	require := require.New(t)

	// 100k tokens with 9 decimals; quorum raw = 20% of that.
	totalRaised := uint64(100_000) * 1_000_000_000
	quorumRaw := uint64(20_000) * 1_000_000_000
	require.Equal(Sqrt(quorumRaw), Quorum(totalRaised))
	require.NotZero(Quorum(totalRaised))

	require.Zero(Quorum(0))
	require.Zero(Quorum(4)) // 20% of 4 is 0 in integer math

	// The widened multiply must not overflow for the full uint64 range;
	// 2000/10000 reduces to exactly one fifth.
	require.Equal(Sqrt(math.MaxUint64/5), Quorum(math.MaxUint64))
}

func TestDecided(t *testing.T) {
	require := require.New(t)

	// Zero denominator is never decided.
	require.False(Decided(10, 0, 0))

	// Strict majority for.
	require.True(Decided(51, 0, 100))
	require.False(Decided(50, 0, 100))

	// Against only needs half.
	require.True(Decided(0, 50, 100))
	require.False(Decided(0, 49, 100))

	// 2*votes would overflow uint64; widened compare must still work.
	require.True(Decided(math.MaxUint64, 0, math.MaxUint64))
	require.True(Decided(0, math.MaxUint64, math.MaxUint64))
}

func TestShare(t *testing.T) {
	require := require.New(t)

	total := uint64(100_000) * 1_000_000_000
	var released uint64
	for i := 0; i < 5; i++ {
		released += Share(total, 20)
	}
	require.Equal(total, released)

	require.Equal(uint64(0), Share(0, 100))
	require.Equal(total, Share(total, 100))

	// Widened multiply: 90% of MaxUint64 would overflow a 64-bit multiply.
	require.Equal(uint64(math.MaxUint64)/100*90+uint64(math.MaxUint64)%100*90/100, Share(math.MaxUint64, 90))
}
