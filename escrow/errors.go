// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import "errors"

var (
	// validation
	ErrInvalidPercentages = errors.New("milestone percentages must sum to 100")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrZeroGoal           = errors.New("goal must be positive")
	ErrNameTooLong        = errors.New("project name too long")
	ErrInvalidMilestone   = errors.New("invalid milestone index")

	// authorization
	ErrNotArtist     = errors.New("caller is not the project artist")
	ErrNotAuthorized = errors.New("caller is not the configured release authority")
	ErrNotAdmin      = errors.New("caller is not the deployment administrator")

	// state
	ErrProjectNotActive        = errors.New("project is not active")
	ErrProjectNotCancelled     = errors.New("project is not cancelled")
	ErrNotAllMilestones        = errors.New("not all milestones released yet")
	ErrNothingToRefund         = errors.New("nothing to refund")
	ErrAlreadyInitialized      = errors.New("already initialized")
	ErrNotInitialized          = errors.New("config not initialized")
	ErrTermsAlreadyInitialized = errors.New("project terms already initialized")
	ErrMilestonesReleased      = errors.New("milestones already released")

	// timing
	ErrDeadlinePassed      = errors.New("project deadline has passed")
	ErrRefundWindowNotOpen = errors.New("refund window is not open")
	ErrRefundWindowClosed  = errors.New("refund window has closed")
	ErrInvalidRefundWindow = errors.New("invalid refund window length")

	// funding
	ErrGoalExceeded = errors.New("funding would exceed project goal")
)
