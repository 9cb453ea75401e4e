// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/luxfi/ids"
)

const (
	// MaterialEditIndex marks a proposal that rewrites project terms
	// instead of releasing a milestone.
	MaterialEditIndex = 255

	// MaxProofURILen bounds the milestone proof link.
	MaxProofURILen = 200

	// DefaultMinVotingPeriod applies when no governance config has been
	// initialized.
	DefaultMinVotingPeriod = int64(24 * 3600)
)

// ProposalStatus is the lifecycle state of a proposal. Active is the only
// non-terminal state.
type ProposalStatus uint8

const (
	ProposalActive ProposalStatus = iota
	ProposalPassed
	ProposalRejected
	ProposalCancelled
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalActive:
		return "active"
	case ProposalPassed:
		return "passed"
	case ProposalRejected:
		return "rejected"
	case ProposalCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Proposal asks a project's backers to approve either the next milestone
// release or a material edit of the project's terms.
type Proposal struct {
	Project        ids.ID         `json:"project"`
	MilestoneIndex uint8          `json:"milestoneIndex"`
	ProofURI       string         `json:"proofUri"`
	VotesFor       uint64         `json:"votesFor"`
	VotesAgainst   uint64         `json:"votesAgainst"`
	Status         ProposalStatus `json:"status"`
	StartTime      int64          `json:"startTime"`
	EndTime        int64          `json:"endTime"`
	Creator        ids.ShortID    `json:"creator"`
}

// Vote is one wallet's immutable ballot on one proposal.
type Vote struct {
	Proposal ids.ID      `json:"proposal"`
	Voter    ids.ShortID `json:"voter"`
	Weight   uint64      `json:"weight"`
	Side     bool        `json:"side"`
}

// ProposalAttempt is a per-project counter that makes proposal creation
// idempotent: the caller passes the attempt it observed, and concurrent
// retries of the same attempt fail instead of minting duplicates.
type ProposalAttempt struct {
	Attempt uint64 `json:"attempt"`
}

// Config tunes finalization. Absent config falls back to
// DefaultMinVotingPeriod with early finalization off.
type Config struct {
	AllowEarlyFinalize  bool  `json:"allowEarlyFinalize"`
	MinVotingPeriodSecs int64 `json:"minVotingPeriodSecs"`
}

// ProposalID derives the deterministic identifier of a proposal from the
// project, milestone slot, and attempt number.
func ProposalID(project ids.ID, milestoneIndex uint8, attempt uint64) ids.ID {
	h := sha256.New()
	h.Write([]byte("proposal"))
	h.Write(project[:])
	h.Write([]byte{milestoneIndex})
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, attempt)
	h.Write(buf)
	id, _ := ids.ToID(h.Sum(nil))
	return id
}
