// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package governance runs backer votes over milestone releases and
// material edits, weighting each ballot by the square root of the voter's
// contribution. Passed proposals instruct the escrow component through a
// derived release-authority identity.
package governance

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/fundvm/authority"
	"github.com/luxfi/fundvm/escrow"
	"github.com/luxfi/fundvm/quadratic"
	"github.com/luxfi/fundvm/utils/timer/mockable"
)

// EscrowBackend is the escrow surface governance depends on. Reads inform
// vote weighting and quorum; the two mutating calls are made only with the
// governance release-authority identity after a proposal passes.
type EscrowBackend interface {
	GetProject(project ids.ID) (*escrow.Project, error)
	GetBacker(project ids.ID, wallet ids.ShortID) (*escrow.Backer, error)
	GetVoteWeight(project ids.ID) (uint64, error)
	ReleaseMilestone(caller ids.ShortID, project ids.ID) error
	ApplyMaterialEdit(
		caller ids.ShortID,
		project ids.ID,
		newTermsHash [32]byte,
		refundWindowSecs int64,
		newGoal uint64,
		newDeadline int64,
		newMilestonePercentages [escrow.MaxMilestones]uint16,
	) error
}

// Governance is the voting engine. All methods are single operations that
// either fully apply or return an error having written nothing the caller
// commits.
type Governance struct {
	store   *Store
	escrow  EscrowBackend
	clock   *mockable.Clock
	log     log.Logger
	isAdmin func(ids.ShortID) bool

	// Identity this component presents to escrow; escrow was configured
	// with the same derivation, so only this engine can move funds.
	releaseAuthority ids.ShortID
}

func New(
	store *Store,
	escrowBackend EscrowBackend,
	clock *mockable.Clock,
	logger log.Logger,
	isAdmin func(ids.ShortID) bool,
	componentID ids.ID,
) *Governance {
	return &Governance{
		store:            store,
		escrow:           escrowBackend,
		clock:            clock,
		log:              logger,
		isAdmin:          isAdmin,
		releaseAuthority: authority.Release(componentID),
	}
}

// ReleaseAuthority returns the identity escrow must be configured to
// accept release and material-edit instructions from.
func (g *Governance) ReleaseAuthority() ids.ShortID {
	return g.releaseAuthority
}

func (g *Governance) Store() *Store {
	return g.store
}

// InitializeConfig sets the finalization tuning. One-time, administrator
// only.
func (g *Governance) InitializeConfig(caller ids.ShortID, allowEarlyFinalize bool, minVotingPeriodSecs int64) error {
	if !g.isAdmin(caller) {
		return ErrNotAdmin
	}
	if minVotingPeriodSecs < 1 {
		return ErrVotingPeriodTooShort
	}
	ok, err := g.store.HasConfig()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	cfg := &Config{
		AllowEarlyFinalize:  allowEarlyFinalize,
		MinVotingPeriodSecs: minVotingPeriodSecs,
	}
	if err := g.store.PutConfig(cfg); err != nil {
		return err
	}
	g.log.Info("governance config initialized",
		log.Bool("allowEarlyFinalize", allowEarlyFinalize),
		log.Uint64("minVotingPeriodSecs", uint64(minVotingPeriodSecs)),
	)
	return nil
}

// UpdateConfig replaces the finalization tuning. Administrator only.
func (g *Governance) UpdateConfig(caller ids.ShortID, allowEarlyFinalize bool, minVotingPeriodSecs int64) error {
	if !g.isAdmin(caller) {
		return ErrNotAdmin
	}
	if minVotingPeriodSecs < 1 {
		return ErrVotingPeriodTooShort
	}
	if _, err := g.store.GetConfig(); err != nil {
		return err
	}
	cfg := &Config{
		AllowEarlyFinalize:  allowEarlyFinalize,
		MinVotingPeriodSecs: minVotingPeriodSecs,
	}
	if err := g.store.PutConfig(cfg); err != nil {
		return err
	}
	g.log.Info("governance config updated",
		log.Bool("allowEarlyFinalize", allowEarlyFinalize),
		log.Uint64("minVotingPeriodSecs", uint64(minVotingPeriodSecs)),
	)
	return nil
}

// Params returns the effective config: the stored one, or conservative
// defaults when none was initialized.
func (g *Governance) Params() (*Config, error) {
	cfg, err := g.store.GetConfig()
	if err == ErrNotInitialized {
		return &Config{
			AllowEarlyFinalize:  false,
			MinVotingPeriodSecs: DefaultMinVotingPeriod,
		}, nil
	}
	return cfg, err
}

// CreateProposal opens a vote on the project's next milestone release, or
// on a material edit when milestoneIndex is MaterialEditIndex. Artist
// only. The attempt argument must equal the project's current attempt
// counter, which makes retries of a lost response safe: the replay fails
// instead of opening a second proposal.
func (g *Governance) CreateProposal(
	artist ids.ShortID,
	project ids.ID,
	milestoneIndex uint8,
	proofURI string,
	votingPeriodSecs int64,
	attempt uint64,
) (ids.ID, error) {
	params, err := g.Params()
	if err != nil {
		return ids.Empty, err
	}
	if votingPeriodSecs < params.MinVotingPeriodSecs {
		return ids.Empty, ErrVotingPeriodTooShort
	}
	if milestoneIndex >= escrow.MaxMilestones && milestoneIndex != MaterialEditIndex {
		return ids.Empty, ErrInvalidMilestone
	}
	if len(proofURI) > MaxProofURILen {
		return ids.Empty, ErrProofURITooLong
	}

	p, err := g.escrow.GetProject(project)
	if err != nil {
		return ids.Empty, err
	}
	if p.Artist != artist {
		return ids.Empty, ErrNotArtist
	}

	current, err := g.store.GetAttempt(project)
	if err != nil {
		return ids.Empty, err
	}
	if current != attempt {
		return ids.Empty, ErrInvalidAttempt
	}
	next, err := safemath.Add(current, 1)
	if err != nil {
		return ids.Empty, err
	}
	if err := g.store.PutAttempt(project, next); err != nil {
		return ids.Empty, err
	}

	now := g.clock.Time().Unix()
	proposalID := ProposalID(project, milestoneIndex, attempt)
	proposal := &Proposal{
		Project:        project,
		MilestoneIndex: milestoneIndex,
		ProofURI:       proofURI,
		Status:         ProposalActive,
		StartTime:      now,
		EndTime:        now + votingPeriodSecs,
		Creator:        artist,
	}
	if err := g.store.PutProposal(proposalID, proposal); err != nil {
		return ids.Empty, err
	}
	g.log.Info("proposal created",
		log.Stringer("proposal", proposalID),
		log.Stringer("project", project),
		log.Uint64("milestone", uint64(milestoneIndex)),
		log.Uint64("attempt", attempt),
	)
	return proposalID, nil
}

// CastVote records the wallet's ballot, weighted by the square root of its
// current net contribution. One ballot per wallet per proposal, immutable
// once cast.
func (g *Governance) CastVote(voter ids.ShortID, proposalID ids.ID, side bool) error {
	proposal, err := g.store.GetProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != ProposalActive {
		return ErrProposalNotActive
	}
	if g.clock.Time().Unix() >= proposal.EndTime {
		return ErrVotingEnded
	}
	voted, err := g.store.HasVote(proposalID, voter)
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyVoted
	}

	backer, err := g.escrow.GetBacker(proposal.Project, voter)
	if err == escrow.ErrBackerNotFound {
		return ErrNoContribution
	}
	if err != nil {
		return err
	}
	if backer.Amount == 0 {
		return ErrNoContribution
	}
	weight := quadratic.Weight(backer.Amount)

	if side {
		proposal.VotesFor, err = safemath.Add(proposal.VotesFor, weight)
	} else {
		proposal.VotesAgainst, err = safemath.Add(proposal.VotesAgainst, weight)
	}
	if err != nil {
		return err
	}

	if err := g.store.PutVote(&Vote{
		Proposal: proposalID,
		Voter:    voter,
		Weight:   weight,
		Side:     side,
	}); err != nil {
		return err
	}
	if err := g.store.PutProposal(proposalID, proposal); err != nil {
		return err
	}
	g.log.Debug("vote cast",
		log.Stringer("proposal", proposalID),
		log.Stringer("voter", voter),
		log.Bool("for", side),
		log.Uint64("weight", weight),
	)
	return nil
}

// decide checks quorum and timing for an Active proposal and returns
// whether it passed. The quorum threshold and the early-finalization
// denominator are both read in the same operation as the tally, so the
// decision is made against one consistent snapshot.
func (g *Governance) decide(proposal *Proposal) (bool, error) {
	totalVotes, err := safemath.Add(proposal.VotesFor, proposal.VotesAgainst)
	if err != nil {
		return false, err
	}
	project, err := g.escrow.GetProject(proposal.Project)
	if err != nil {
		return false, err
	}
	if totalVotes < quadratic.Quorum(project.TotalRaised) {
		return false, ErrQuorumNotMet
	}

	params, err := g.Params()
	if err != nil {
		return false, err
	}
	votingEnded := g.clock.Time().Unix() >= proposal.EndTime
	earlyOK := false
	if params.AllowEarlyFinalize {
		totalWeight, err := g.escrow.GetVoteWeight(proposal.Project)
		if err != nil {
			return false, err
		}
		earlyOK = quadratic.Decided(proposal.VotesFor, proposal.VotesAgainst, totalWeight)
	}
	if !votingEnded && !earlyOK {
		return false, ErrVotingNotEnded
	}
	return proposal.VotesFor > proposal.VotesAgainst, nil
}

// FinalizeProposal settles a milestone-release proposal once its outcome
// is knowable, releasing the milestone if it passed. Callable by anyone.
func (g *Governance) FinalizeProposal(proposalID ids.ID) (ProposalStatus, error) {
	proposal, err := g.store.GetProposal(proposalID)
	if err != nil {
		return 0, err
	}
	if proposal.Status != ProposalActive {
		return 0, ErrProposalNotActive
	}
	if proposal.MilestoneIndex == MaterialEditIndex {
		return 0, ErrInvalidMilestone
	}
	passed, err := g.decide(proposal)
	if err != nil {
		return 0, err
	}

	if passed {
		proposal.Status = ProposalPassed
		if err := g.escrow.ReleaseMilestone(g.releaseAuthority, proposal.Project); err != nil {
			return 0, err
		}
	} else {
		proposal.Status = ProposalRejected
	}
	if err := g.store.PutProposal(proposalID, proposal); err != nil {
		return 0, err
	}
	g.log.Info("proposal finalized",
		log.Stringer("proposal", proposalID),
		log.Stringer("status", proposal.Status),
	)
	return proposal.Status, nil
}

// FinalizeMaterialEdit settles a material-edit proposal, applying the new
// terms if it passed. The edit payload is supplied at finalization and
// must hash-match what backers voted on; that check is the caller's
// responsibility via the terms hash.
func (g *Governance) FinalizeMaterialEdit(
	proposalID ids.ID,
	newTermsHash [32]byte,
	refundWindowSecs int64,
	newGoal uint64,
	newDeadline int64,
	newMilestonePercentages [escrow.MaxMilestones]uint16,
) (ProposalStatus, error) {
	proposal, err := g.store.GetProposal(proposalID)
	if err != nil {
		return 0, err
	}
	if proposal.MilestoneIndex != MaterialEditIndex {
		return 0, ErrInvalidMilestone
	}
	if proposal.Status != ProposalActive {
		return 0, ErrProposalNotActive
	}
	passed, err := g.decide(proposal)
	if err != nil {
		return 0, err
	}

	if passed {
		proposal.Status = ProposalPassed
		if err := g.escrow.ApplyMaterialEdit(
			g.releaseAuthority,
			proposal.Project,
			newTermsHash,
			refundWindowSecs,
			newGoal,
			newDeadline,
			newMilestonePercentages,
		); err != nil {
			return 0, err
		}
	} else {
		proposal.Status = ProposalRejected
	}
	if err := g.store.PutProposal(proposalID, proposal); err != nil {
		return 0, err
	}
	g.log.Info("material-edit proposal finalized",
		log.Stringer("proposal", proposalID),
		log.Stringer("status", proposal.Status),
	)
	return proposal.Status, nil
}

// CancelProposal withdraws an Active proposal. Creator only.
func (g *Governance) CancelProposal(caller ids.ShortID, proposalID ids.ID) error {
	proposal, err := g.store.GetProposal(proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != ProposalActive {
		return ErrProposalNotActive
	}
	if proposal.Creator != caller {
		return ErrNotCreator
	}
	proposal.Status = ProposalCancelled
	if err := g.store.PutProposal(proposalID, proposal); err != nil {
		return err
	}
	g.log.Info("proposal cancelled", log.Stringer("proposal", proposalID))
	return nil
}
