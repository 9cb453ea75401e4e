// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package escrow holds contributed funds for milestone-gated crowdfunding
// projects and releases them only on instruction from the configured
// governance release authority.
package escrow

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/fundvm/authority"
	"github.com/luxfi/fundvm/bank"
	"github.com/luxfi/fundvm/quadratic"
	"github.com/luxfi/fundvm/utils/timer/mockable"
)

const (
	// Platform fee on every contribution, in percent: 2% to the treasury,
	// 2% burned, 96% escrowed.
	treasuryFeePct = 2
	burnFeePct     = 2
)

// Escrow is the fund-custody engine. All methods are single operations:
// they either fully apply or return an error having written nothing the
// caller commits.
type Escrow struct {
	store    *Store
	bank     *bank.Bank
	clock    *mockable.Clock
	log      log.Logger
	isAdmin  func(ids.ShortID) bool
	treasury ids.ShortID
}

func New(
	store *Store,
	bank *bank.Bank,
	clock *mockable.Clock,
	logger log.Logger,
	isAdmin func(ids.ShortID) bool,
	treasury ids.ShortID,
) *Escrow {
	return &Escrow{
		store:    store,
		bank:     bank,
		clock:    clock,
		log:      logger,
		isAdmin:  isAdmin,
		treasury: treasury,
	}
}

// Store exposes the underlying record store for read-only consumers (the
// governance component and the API).
func (e *Escrow) Store() *Store {
	return e.store
}

func (e *Escrow) GetProject(project ids.ID) (*Project, error) {
	return e.store.GetProject(project)
}

func (e *Escrow) GetBacker(project ids.ID, wallet ids.ShortID) (*Backer, error) {
	return e.store.GetBacker(project, wallet)
}

func (e *Escrow) GetVoteWeight(project ids.ID) (uint64, error) {
	return e.store.GetVoteWeight(project)
}

// InitializeConfig stores the governance release authority. One-time,
// administrator only.
func (e *Escrow) InitializeConfig(caller ids.ShortID, releaseAuthority ids.ShortID) error {
	if !e.isAdmin(caller) {
		return ErrNotAdmin
	}
	ok, err := e.store.HasConfig()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	if err := e.store.PutConfig(&Config{ReleaseAuthority: releaseAuthority}); err != nil {
		return err
	}
	e.log.Info("escrow config initialized",
		log.Stringer("releaseAuthority", releaseAuthority),
	)
	return nil
}

// UpdateConfig rotates the governance release authority. Administrator
// only.
func (e *Escrow) UpdateConfig(caller ids.ShortID, releaseAuthority ids.ShortID) error {
	if !e.isAdmin(caller) {
		return ErrNotAdmin
	}
	if _, err := e.store.GetConfig(); err != nil {
		return err
	}
	if err := e.store.PutConfig(&Config{ReleaseAuthority: releaseAuthority}); err != nil {
		return err
	}
	e.log.Info("escrow config updated",
		log.Stringer("releaseAuthority", releaseAuthority),
	)
	return nil
}

// SetVoteWeight overwrites a project's vote-weight accumulator (backfill
// for projects funded before the accumulator existed). Administrator only.
func (e *Escrow) SetVoteWeight(caller ids.ShortID, project ids.ID, totalVoteWeight uint64) error {
	if !e.isAdmin(caller) {
		return ErrNotAdmin
	}
	if _, err := e.store.GetProject(project); err != nil {
		return err
	}
	return e.store.PutVoteWeight(project, totalVoteWeight)
}

// requireReleaseAuthority checks the caller against the stored release
// authority. The stored value was itself derived from the governance
// component's identity, so comparing against it re-derives the expected
// caller rather than trusting a self-assertion.
func (e *Escrow) requireReleaseAuthority(caller ids.ShortID) error {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return err
	}
	if cfg.ReleaseAuthority != caller {
		return ErrNotAuthorized
	}
	return nil
}

// CreateProject registers a new project for the artist. The project ID is
// derived from the artist identity and their monotonic project counter.
func (e *Escrow) CreateProject(
	artist ids.ShortID,
	name string,
	goal uint64,
	milestonePercentages [MaxMilestones]uint16,
	deadline int64,
) (ids.ID, error) {
	if len(name) > MaxProjectNameLen {
		return ids.Empty, ErrNameTooLong
	}
	if goal == 0 {
		return ids.Empty, ErrZeroGoal
	}
	if !PercentagesSumTo100(milestonePercentages) {
		return ids.Empty, ErrInvalidPercentages
	}

	state, err := e.store.GetArtistState(artist)
	if err != nil {
		return ids.Empty, err
	}
	projectID := ProjectID(artist, state.ProjectCount)

	state.ProjectCount, err = safemath.Add(state.ProjectCount, 1)
	if err != nil {
		return ids.Empty, err
	}
	if err := e.store.PutArtistState(state); err != nil {
		return ids.Empty, err
	}

	project := &Project{
		Artist:               artist,
		Name:                 name,
		Goal:                 goal,
		MilestonePercentages: milestonePercentages,
		Deadline:             deadline,
		Status:               ProjectActive,
	}
	if err := e.store.PutProject(projectID, project); err != nil {
		return ids.Empty, err
	}
	e.log.Info("project created",
		log.Stringer("project", projectID),
		log.Stringer("artist", artist),
		log.Uint64("goal", goal),
	)
	return projectID, nil
}

// InitializeTerms publishes the project's terms hash before any backer
// funds. One-time per project, artist only.
func (e *Escrow) InitializeTerms(artist ids.ShortID, project ids.ID, termsHash [32]byte) error {
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Artist != artist {
		return ErrNotArtist
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	if _, err := e.store.GetTerms(project); err == nil {
		return ErrTermsAlreadyInitialized
	} else if err != ErrTermsNotFound {
		return err
	}
	return e.store.PutTerms(project, &ProjectTerms{
		TermsHash: termsHash,
		Version:   1,
	})
}

// FundProject contributes amount to the project: 2% to the treasury, 2%
// burned, the rest escrowed. Rejected outright if the escrowed part would
// push total raised past the goal.
func (e *Escrow) FundProject(wallet ids.ShortID, project ids.ID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	if e.clock.Time().Unix() >= p.Deadline {
		return ErrDeadlinePassed
	}

	// Widened so the fee multiply cannot overflow near MaxUint64.
	treasuryFee := quadratic.Share(amount, treasuryFeePct)
	burnFee := quadratic.Share(amount, burnFeePct)
	toEscrow := amount - treasuryFee - burnFee

	newRaised, err := safemath.Add(p.TotalRaised, toEscrow)
	if err != nil {
		return fmt.Errorf("total raised overflow: %w", err)
	}
	if newRaised > p.Goal {
		return ErrGoalExceeded
	}

	backer, err := e.store.GetBacker(project, wallet)
	if err == ErrBackerNotFound {
		backer = &Backer{Wallet: wallet, Project: project}
	} else if err != nil {
		return err
	}
	firstContribution := backer.Amount == 0

	backer.Amount, err = safemath.Add(backer.Amount, toEscrow)
	if err != nil {
		return fmt.Errorf("backer amount overflow: %w", err)
	}

	p.TotalRaised = newRaised
	if firstContribution {
		p.BackerCount, err = safemath.Add(p.BackerCount, 1)
		if err != nil {
			return err
		}
	}

	weight, err := e.store.GetVoteWeight(project)
	if err != nil {
		return err
	}
	newWeight, err := safemath.Add(weight, quadratic.Weight(toEscrow))
	if err != nil {
		return fmt.Errorf("vote weight overflow: %w", err)
	}

	// Token movements and record updates commit or abort together with the
	// enclosing operation.
	if toEscrow > 0 {
		if err := e.bank.Transfer(wallet, authority.Escrow(project), toEscrow); err != nil {
			return err
		}
	}
	if treasuryFee > 0 {
		if err := e.bank.Transfer(wallet, e.treasury, treasuryFee); err != nil {
			return err
		}
	}
	if burnFee > 0 {
		if err := e.bank.Burn(wallet, burnFee); err != nil {
			return err
		}
	}

	if err := e.store.PutBacker(backer); err != nil {
		return err
	}
	if err := e.store.PutProject(project, p); err != nil {
		return err
	}
	if err := e.store.PutVoteWeight(project, newWeight); err != nil {
		return err
	}

	e.log.Debug("project funded",
		log.Stringer("project", project),
		log.Stringer("backer", wallet),
		log.Uint64("amount", amount),
		log.Uint64("toEscrow", toEscrow),
		log.Uint64("fees", treasuryFee+burnFee),
	)
	return nil
}

// ReleaseMilestone pays the current milestone's share of total raised to
// the artist. Callable only by the configured release authority. Marks the
// project Completed when the last effective milestone is released.
func (e *Escrow) ReleaseMilestone(caller ids.ShortID, project ids.ID) error {
	if err := e.requireReleaseAuthority(caller); err != nil {
		return err
	}
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	idx := int(p.CurrentMilestone)
	if idx >= MaxMilestones {
		return ErrInvalidMilestone
	}

	amount := quadratic.Share(p.TotalRaised, p.MilestonePercentages[idx])
	if amount > 0 {
		if err := e.bank.Transfer(authority.Escrow(project), p.Artist, amount); err != nil {
			return err
		}
	}

	p.CurrentMilestone++
	if int(p.CurrentMilestone) >= EffectiveMilestoneCount(p.MilestonePercentages) {
		p.Status = ProjectCompleted
	}
	if err := e.store.PutProject(project, p); err != nil {
		return err
	}
	e.log.Info("milestone released",
		log.Stringer("project", project),
		log.Uint64("milestone", uint64(idx)),
		log.Uint64("amount", amount),
	)
	return nil
}

// CompleteProject marks the project Completed once every effective
// milestone has been released. Callable only by the release authority.
func (e *Escrow) CompleteProject(caller ids.ShortID, project ids.ID) error {
	if err := e.requireReleaseAuthority(caller); err != nil {
		return err
	}
	return e.completeProject(project)
}

// ForceCompleteProject is the administrator recovery path with the same
// all-milestones-released guard.
func (e *Escrow) ForceCompleteProject(caller ids.ShortID, project ids.ID) error {
	if !e.isAdmin(caller) {
		return ErrNotAdmin
	}
	return e.completeProject(project)
}

func (e *Escrow) completeProject(project ids.ID) error {
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	if int(p.CurrentMilestone) < EffectiveMilestoneCount(p.MilestonePercentages) {
		return ErrNotAllMilestones
	}
	p.Status = ProjectCompleted
	return e.store.PutProject(project, p)
}

// CancelProject moves an Active project to Cancelled, unlocking refunds.
// Artist only.
func (e *Escrow) CancelProject(artist ids.ShortID, project ids.ID) error {
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	if p.Artist != artist {
		return ErrNotArtist
	}
	p.Status = ProjectCancelled
	if err := e.store.PutProject(project, p); err != nil {
		return err
	}
	e.log.Info("project cancelled", log.Stringer("project", project))
	return nil
}

// Refund returns a backer's full contribution on a cancelled project. The
// backer record is zeroed, not deleted, so a second call rejects.
func (e *Escrow) Refund(wallet ids.ShortID, project ids.ID) error {
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectCancelled {
		return ErrProjectNotCancelled
	}
	backer, err := e.store.GetBacker(project, wallet)
	if err != nil {
		return err
	}
	amount := backer.Amount
	if amount == 0 {
		return ErrNothingToRefund
	}

	if err := e.bank.Transfer(authority.Escrow(project), wallet, amount); err != nil {
		return err
	}
	backer.Amount = 0
	if err := e.store.PutBacker(backer); err != nil {
		return err
	}

	weight, err := e.store.GetVoteWeight(project)
	if err != nil {
		return err
	}
	// Saturating: backfilled accumulators may undercount old refunds.
	newWeight := weight - min(weight, quadratic.Weight(amount))
	if err := e.store.PutVoteWeight(project, newWeight); err != nil {
		return err
	}

	e.log.Debug("refund",
		log.Stringer("project", project),
		log.Stringer("backer", wallet),
		log.Uint64("amount", amount),
	)
	return nil
}

// ApplyMaterialEdit rewrites the project's economic terms and opens a
// refund window. Callable only by the release authority, which invokes it
// when a material-edit proposal passes.
func (e *Escrow) ApplyMaterialEdit(
	caller ids.ShortID,
	project ids.ID,
	newTermsHash [32]byte,
	refundWindowSecs int64,
	newGoal uint64,
	newDeadline int64,
	newMilestonePercentages [MaxMilestones]uint16,
) error {
	if err := e.requireReleaseAuthority(caller); err != nil {
		return err
	}
	if !PercentagesSumTo100(newMilestonePercentages) {
		return ErrInvalidPercentages
	}
	if refundWindowSecs < 0 {
		return ErrInvalidRefundWindow
	}
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}

	terms, err := e.store.GetTerms(project)
	if err == ErrTermsNotFound {
		terms = &ProjectTerms{}
	} else if err != nil {
		return err
	}
	terms.TermsHash = newTermsHash
	if terms.Version < ^uint32(0) {
		terms.Version++
	}
	now := e.clock.Time().Unix()
	windowEnd := now + refundWindowSecs
	if windowEnd < now {
		return ErrInvalidRefundWindow
	}
	terms.RefundWindowEnd = windowEnd

	p.Goal = newGoal
	p.Deadline = newDeadline
	p.MilestonePercentages = newMilestonePercentages

	if err := e.store.PutTerms(project, terms); err != nil {
		return err
	}
	if err := e.store.PutProject(project, p); err != nil {
		return err
	}
	e.log.Info("material edit applied",
		log.Stringer("project", project),
		log.Uint64("termsVersion", uint64(terms.Version)),
		log.Uint64("refundWindowEnd", uint64(max(terms.RefundWindowEnd, 0))),
	)
	return nil
}

// OptOut returns a backer's full contribution during an open material-edit
// refund window, before any milestone has been released.
func (e *Escrow) OptOut(wallet ids.ShortID, project ids.ID) error {
	p, err := e.store.GetProject(project)
	if err != nil {
		return err
	}
	if p.Status != ProjectActive {
		return ErrProjectNotActive
	}
	terms, err := e.store.GetTerms(project)
	if err != nil {
		return err
	}
	if terms.RefundWindowEnd == 0 {
		return ErrRefundWindowNotOpen
	}
	if e.clock.Time().Unix() >= terms.RefundWindowEnd {
		return ErrRefundWindowClosed
	}
	if p.CurrentMilestone != 0 {
		return ErrMilestonesReleased
	}
	backer, err := e.store.GetBacker(project, wallet)
	if err != nil {
		return err
	}
	amount := backer.Amount
	if amount == 0 {
		return ErrNothingToRefund
	}

	if err := e.bank.Transfer(authority.Escrow(project), wallet, amount); err != nil {
		return err
	}
	backer.Amount = 0
	if err := e.store.PutBacker(backer); err != nil {
		return err
	}

	p.TotalRaised, err = safemath.Sub(p.TotalRaised, amount)
	if err != nil {
		return err
	}
	p.BackerCount, err = safemath.Sub(p.BackerCount, 1)
	if err != nil {
		return err
	}
	if err := e.store.PutProject(project, p); err != nil {
		return err
	}

	weight, err := e.store.GetVoteWeight(project)
	if err != nil {
		return err
	}
	newWeight := weight - min(weight, quadratic.Weight(amount))
	if err := e.store.PutVoteWeight(project, newWeight); err != nil {
		return err
	}

	e.log.Debug("opt-out refund",
		log.Stringer("project", project),
		log.Stringer("backer", wallet),
		log.Uint64("amount", amount),
	)
	return nil
}
