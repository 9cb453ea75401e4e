// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import "errors"

var (
	// validation
	ErrVotingPeriodTooShort = errors.New("voting period too short")
	ErrInvalidMilestone     = errors.New("invalid milestone index")
	ErrProofURITooLong      = errors.New("proof uri too long")
	ErrInvalidAttempt       = errors.New("proposal attempt does not match counter")

	// authorization
	ErrNotAdmin   = errors.New("caller is not the deployment administrator")
	ErrNotArtist  = errors.New("caller is not the project artist")
	ErrNotCreator = errors.New("caller is not the proposal creator")

	// state
	ErrProposalNotActive  = errors.New("proposal is not active")
	ErrAlreadyVoted       = errors.New("wallet already voted on this proposal")
	ErrNoContribution     = errors.New("wallet has no contribution in this project")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("config not initialized")

	// timing
	ErrVotingEnded    = errors.New("voting has ended")
	ErrVotingNotEnded = errors.New("voting period has not ended")
	ErrQuorumNotMet   = errors.New("quorum not met")
)
