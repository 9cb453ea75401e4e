// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quadratic implements the vote-weight math for milestone
// governance: integer square roots, quadratic weights, basis-point quorums
// and the early-finalization decision rule.
package quadratic

import (
	"github.com/holiman/uint256"
)

const (
	// QuorumBps is the share of total raised funds, in basis points, whose
	// square root a proposal's combined tally must reach.
	QuorumBps = 2000

	bpsDenominator = 10_000
)

// Sqrt returns floor(sqrt(x)) using integer Babylonian refinement. The
// iteration starts at ceil(x/2) and halves the estimate until it stops
// decreasing; the last decreasing value is the floor square root. Exact for
// every uint64 input, no floating point involved.
func Sqrt(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	z := x/2 + x%2
	y := x
	for z < y {
		y = z
		z = (x/z + z) / 2
	}
	return y
}

// Weight returns the quadratic voting weight for a contribution amount.
func Weight(amount uint64) uint64 {
	return Sqrt(amount)
}

// Quorum returns the minimum combined vote weight required to finalize a
// proposal against a project that has raised totalRaised. The basis-point
// multiply is widened through uint256 so it cannot overflow before the
// division.
func Quorum(totalRaised uint64) uint64 {
	raw := new(uint256.Int).SetUint64(totalRaised)
	raw.Mul(raw, uint256.NewInt(QuorumBps))
	raw.Div(raw, uint256.NewInt(bpsDenominator))
	return Sqrt(raw.Uint64())
}

// Decided reports whether a proposal's outcome can no longer be reversed by
// the remaining unvoted weight. totalWeight is the project's full quadratic
// weight denominator. The for side must hold a strict majority of all
// possible weight; the against side only needs to reach half, since a tie
// rejects. A zero denominator is never decided.
func Decided(votesFor, votesAgainst, totalWeight uint64) bool {
	if totalWeight == 0 {
		return false
	}
	total := new(uint256.Int).SetUint64(totalWeight)

	twoFor := new(uint256.Int).SetUint64(votesFor)
	twoFor.Mul(twoFor, uint256.NewInt(2))
	if twoFor.Gt(total) {
		return true
	}

	twoAgainst := new(uint256.Int).SetUint64(votesAgainst)
	twoAgainst.Mul(twoAgainst, uint256.NewInt(2))
	return !twoAgainst.Lt(total)
}

// Share returns amount*percentage/100 with the multiply widened through
// uint256. Used for milestone release amounts.
func Share(amount uint64, percentage uint16) uint64 {
	v := new(uint256.Int).SetUint64(amount)
	v.Mul(v, uint256.NewInt(uint64(percentage)))
	v.Div(v, uint256.NewInt(100))
	return v.Uint64()
}
