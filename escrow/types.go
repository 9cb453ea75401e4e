// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/luxfi/ids"
)

const (
	// MaxMilestones is the number of milestone slots per project.
	MaxMilestones = 5

	// MaxProjectNameLen bounds the project name used by the metadata
	// collaborator.
	MaxProjectNameLen = 32
)

// ProjectStatus is the lifecycle state of a project. Transitions are
// monotonic: Active is the only non-terminal state.
type ProjectStatus uint8

const (
	ProjectActive ProjectStatus = iota
	ProjectCompleted
	ProjectCancelled
)

func (s ProjectStatus) String() string {
	switch s {
	case ProjectActive:
		return "active"
	case ProjectCompleted:
		return "completed"
	case ProjectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Project is the escrow-side record of a crowdfunded project.
type Project struct {
	Artist               ids.ShortID           `json:"artist"`
	Name                 string                `json:"name"`
	Goal                 uint64                `json:"goal"`
	MilestonePercentages [MaxMilestones]uint16 `json:"milestonePercentages"`
	Deadline             int64                 `json:"deadline"`
	Status               ProjectStatus         `json:"status"`
	TotalRaised          uint64                `json:"totalRaised"`
	BackerCount          uint32                `json:"backerCount"`
	CurrentMilestone     uint8                 `json:"currentMilestone"`
}

// Backer records one wallet's cumulative net contribution to one project.
// The record persists as a zeroed tombstone after refund or opt-out.
type Backer struct {
	Wallet        ids.ShortID `json:"wallet"`
	Project       ids.ID      `json:"project"`
	Amount        uint64      `json:"amount"`
	ClaimedShares bool        `json:"claimedShares"`
}

// ArtistState tracks how many projects an artist has created; the counter
// never decreases and seeds each project's identifier.
type ArtistState struct {
	Artist       ids.ShortID `json:"artist"`
	ProjectCount uint64      `json:"projectCount"`
}

// ProjectVoteWeight is the running sum of sqrt(contribution) per project,
// the denominator for the early-finalization decision rule.
type ProjectVoteWeight struct {
	TotalVoteWeight uint64 `json:"totalVoteWeight"`
}

// ProjectTerms tracks the content hash and version of a project's legal and
// economic terms. RefundWindowEnd of zero means no window is open.
type ProjectTerms struct {
	TermsHash       [32]byte `json:"termsHash"`
	Version         uint32   `json:"version"`
	RefundWindowEnd int64    `json:"refundWindowEnd"`
}

// Config stores the only identity escrow accepts release and material-edit
// instructions from.
type Config struct {
	ReleaseAuthority ids.ShortID `json:"releaseAuthority"`
}

// EffectiveMilestoneCount returns how many milestones must be released
// before a project completes: the position after the last non-zero
// percentage. [50,50,0,0,0] needs 2 releases.
func EffectiveMilestoneCount(percentages [MaxMilestones]uint16) int {
	for i := MaxMilestones - 1; i >= 0; i-- {
		if percentages[i] > 0 {
			return i + 1
		}
	}
	return 1
}

// PercentagesSumTo100 reports whether a milestone schedule is valid.
func PercentagesSumTo100(percentages [MaxMilestones]uint16) bool {
	var sum uint32
	for _, p := range percentages {
		sum += uint32(p)
	}
	return sum == 100
}

// ProjectID derives the deterministic identifier of the artist's n-th
// project.
func ProjectID(artist ids.ShortID, index uint64) ids.ID {
	h := sha256.New()
	h.Write([]byte("project"))
	h.Write(artist[:])
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	h.Write(buf)
	id, _ := ids.ToID(h.Sum(nil))
	return id
}
