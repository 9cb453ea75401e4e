// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fundvm/bank"
	"github.com/luxfi/fundvm/escrow"
	"github.com/luxfi/fundvm/quadratic"
	"github.com/luxfi/fundvm/utils/timer/mockable"
)

var (
	testAdmin    = ids.GenerateTestShortID()
	testTreasury = ids.GenerateTestShortID()
)

const week = int64(7 * 24 * 3600)

type testEnv struct {
	gov    *Governance
	escrow *escrow.Escrow
	bank   *bank.Bank
	clock  *mockable.Clock

	artist  ids.ShortID
	project ids.ID
}

// newTestEnv wires governance over a live escrow with one active project:
// goal 1_000_000, milestones 50/50, deadline 90 days out.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require := require.New(t)

	db := memdb.New()
	b := bank.New(db, nil, log.NewNoOpLogger())
	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_000_000, 0))
	isAdmin := func(addr ids.ShortID) bool { return addr == testAdmin }

	esc := escrow.New(escrow.NewStore(db), b, clock, log.NewNoOpLogger(), isAdmin, testTreasury)
	gov := New(NewStore(db), esc, clock, log.NewNoOpLogger(), isAdmin, ids.GenerateTestID())
	require.NoError(esc.InitializeConfig(testAdmin, gov.ReleaseAuthority()))

	artist := ids.GenerateTestShortID()
	project, err := esc.CreateProject(
		artist, "debut album", 1_000_000,
		[escrow.MaxMilestones]uint16{50, 50},
		clock.Time().Unix()+90*24*3600,
	)
	require.NoError(err)

	return &testEnv{
		gov:     gov,
		escrow:  esc,
		bank:    b,
		clock:   clock,
		artist:  artist,
		project: project,
	}
}

func (env *testEnv) back(t *testing.T, wallet ids.ShortID, amount uint64) {
	t.Helper()
	require.NoError(t, env.bank.Mint(wallet, amount))
	require.NoError(t, env.escrow.FundProject(wallet, env.project, amount))
}

func (env *testEnv) propose(t *testing.T, milestoneIndex uint8) ids.ID {
	t.Helper()
	attempt, err := env.gov.Store().GetAttempt(env.project)
	require.NoError(t, err)
	proposalID, err := env.gov.CreateProposal(
		env.artist, env.project, milestoneIndex, "ipfs://proof", week, attempt,
	)
	require.NoError(t, err)
	return proposalID
}

func (env *testEnv) pastVotingEnd(t *testing.T, proposalID ids.ID) {
	t.Helper()
	p, err := env.gov.Store().GetProposal(proposalID)
	require.NoError(t, err)
	env.clock.Set(time.Unix(p.EndTime, 0))
}

func TestConfigLifecycle(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	// Defaults before any config exists.
	params, err := env.gov.Params()
	require.NoError(err)
	require.False(params.AllowEarlyFinalize)
	require.Equal(DefaultMinVotingPeriod, params.MinVotingPeriodSecs)

	err = env.gov.InitializeConfig(env.artist, true, 3600)
	require.ErrorIs(err, ErrNotAdmin)
	err = env.gov.InitializeConfig(testAdmin, true, 0)
	require.ErrorIs(err, ErrVotingPeriodTooShort)

	require.NoError(env.gov.InitializeConfig(testAdmin, true, 3600))
	err = env.gov.InitializeConfig(testAdmin, true, 3600)
	require.ErrorIs(err, ErrAlreadyInitialized)

	params, err = env.gov.Params()
	require.NoError(err)
	require.True(params.AllowEarlyFinalize)
	require.Equal(int64(3600), params.MinVotingPeriodSecs)

	require.NoError(env.gov.UpdateConfig(testAdmin, false, 7200))
	params, err = env.gov.Params()
	require.NoError(err)
	require.False(params.AllowEarlyFinalize)
	require.Equal(int64(7200), params.MinVotingPeriodSecs)
}

func TestCreateProposalValidation(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, err := env.gov.CreateProposal(env.artist, env.project, 0, "u", DefaultMinVotingPeriod-1, 0)
	require.ErrorIs(err, ErrVotingPeriodTooShort)

	_, err = env.gov.CreateProposal(env.artist, env.project, escrow.MaxMilestones, "u", week, 0)
	require.ErrorIs(err, ErrInvalidMilestone)

	longURI := make([]byte, MaxProofURILen+1)
	for i := range longURI {
		longURI[i] = 'u'
	}
	_, err = env.gov.CreateProposal(env.artist, env.project, 0, string(longURI), week, 0)
	require.ErrorIs(err, ErrProofURITooLong)

	_, err = env.gov.CreateProposal(ids.GenerateTestShortID(), env.project, 0, "u", week, 0)
	require.ErrorIs(err, ErrNotArtist)

	// The material-edit index is valid despite being out of milestone range.
	_, err = env.gov.CreateProposal(env.artist, env.project, MaterialEditIndex, "u", week, 0)
	require.NoError(err)
}

func TestCreateProposalAttemptCounter(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	// Stale and future attempts both reject.
	_, err := env.gov.CreateProposal(env.artist, env.project, 0, "u", week, 1)
	require.ErrorIs(err, ErrInvalidAttempt)

	first, err := env.gov.CreateProposal(env.artist, env.project, 0, "u", week, 0)
	require.NoError(err)
	require.Equal(ProposalID(env.project, 0, 0), first)

	// Replaying the consumed attempt fails instead of duplicating.
	_, err = env.gov.CreateProposal(env.artist, env.project, 0, "u", week, 0)
	require.ErrorIs(err, ErrInvalidAttempt)

	second, err := env.gov.CreateProposal(env.artist, env.project, 0, "u", week, 1)
	require.NoError(err)
	require.NotEqual(first, second)
}

func TestCastVote(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)
	env.back(t, bob, 50_000)

	proposalID := env.propose(t, 0)

	err := env.gov.CastVote(ids.GenerateTestShortID(), proposalID, true)
	require.ErrorIs(err, ErrNoContribution)

	require.NoError(env.gov.CastVote(alice, proposalID, true))
	require.NoError(env.gov.CastVote(bob, proposalID, false))

	err = env.gov.CastVote(alice, proposalID, false)
	require.ErrorIs(err, ErrAlreadyVoted)

	p, err := env.gov.Store().GetProposal(proposalID)
	require.NoError(err)
	require.Equal(quadratic.Sqrt(96_000), p.VotesFor)
	require.Equal(quadratic.Sqrt(48_000), p.VotesAgainst)

	v, err := env.gov.Store().GetVote(proposalID, alice)
	require.NoError(err)
	require.True(v.Side)
	require.Equal(quadratic.Sqrt(96_000), v.Weight)

	// Voting closes at the end timestamp.
	env.pastVotingEnd(t, proposalID)
	carol := ids.GenerateTestShortID()
	err = env.gov.CastVote(carol, proposalID, true)
	require.ErrorIs(err, ErrVotingEnded)
}

func TestFinalizeReleasesMilestone(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)

	proposalID := env.propose(t, 0)
	require.NoError(env.gov.CastVote(alice, proposalID, true))

	// Voting still open and early finalization is off by default.
	_, err := env.gov.FinalizeProposal(proposalID)
	require.ErrorIs(err, ErrVotingNotEnded)

	env.pastVotingEnd(t, proposalID)
	status, err := env.gov.FinalizeProposal(proposalID)
	require.NoError(err)
	require.Equal(ProposalPassed, status)

	// Half of the 96_000 escrowed went to the artist.
	bal, err := env.bank.Balance(env.artist)
	require.NoError(err)
	require.Equal(uint64(48_000), bal)

	proj, err := env.escrow.GetProject(env.project)
	require.NoError(err)
	require.Equal(uint8(1), proj.CurrentMilestone)

	// Finalization is terminal.
	_, err = env.gov.FinalizeProposal(proposalID)
	require.ErrorIs(err, ErrProposalNotActive)
}

func TestFinalizeRejected(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)
	env.back(t, bob, 100_000)

	proposalID := env.propose(t, 0)
	require.NoError(env.gov.CastVote(alice, proposalID, true))
	require.NoError(env.gov.CastVote(bob, proposalID, false))

	env.pastVotingEnd(t, proposalID)
	// A tie does not pass.
	status, err := env.gov.FinalizeProposal(proposalID)
	require.NoError(err)
	require.Equal(ProposalRejected, status)

	bal, err := env.bank.Balance(env.artist)
	require.NoError(err)
	require.Zero(bal)
}

func TestFinalizeQuorum(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 1_000) // escrowed 960, weight sqrt(960)=30
	env.back(t, bob, 500_000) // escrowed 480_000

	// Quorum = sqrt(480_960 / 5) = sqrt(96_192) = 310. Only the small
	// backer votes: 30 < 310.
	proposalID := env.propose(t, 0)
	require.NoError(env.gov.CastVote(alice, proposalID, true))

	env.pastVotingEnd(t, proposalID)
	_, err := env.gov.FinalizeProposal(proposalID)
	require.ErrorIs(err, ErrQuorumNotMet)

	// The whale's ballot clears it regardless of side.
	require.NoError(env.gov.CastVote(bob, proposalID, false))
	status, err := env.gov.FinalizeProposal(proposalID)
	require.NoError(err)
	require.Equal(ProposalRejected, status)
}

func TestEarlyFinalize(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	require.NoError(env.gov.InitializeConfig(testAdmin, true, 3600))

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 400_000) // weight sqrt(384_000) = 619
	env.back(t, bob, 100_000)   // weight sqrt(96_000)  = 309

	proposalID := env.propose(t, 0)

	// Alice alone: 2*619 = 1238 > 928 total weight, outcome is locked in
	// while the clock is still inside the voting window.
	require.NoError(env.gov.CastVote(alice, proposalID, true))
	status, err := env.gov.FinalizeProposal(proposalID)
	require.NoError(err)
	require.Equal(ProposalPassed, status)
}

func TestEarlyFinalizeNotDecided(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	require.NoError(env.gov.InitializeConfig(testAdmin, true, 3600))

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 100_000) // weight 309
	env.back(t, bob, 400_000)   // weight 619

	proposalID := env.propose(t, 0)

	// The minority voted for; the whale could still flip it.
	require.NoError(env.gov.CastVote(alice, proposalID, true))
	_, err := env.gov.FinalizeProposal(proposalID)
	require.ErrorIs(err, ErrVotingNotEnded)

	// An against majority decides at >= half the total weight.
	require.NoError(env.gov.CastVote(bob, proposalID, false))
	status, err := env.gov.FinalizeProposal(proposalID)
	require.NoError(err)
	require.Equal(ProposalRejected, status)
}

func TestCancelProposal(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)

	proposalID := env.propose(t, 0)

	err := env.gov.CancelProposal(alice, proposalID)
	require.ErrorIs(err, ErrNotCreator)
	require.NoError(env.gov.CancelProposal(env.artist, proposalID))

	err = env.gov.CastVote(alice, proposalID, true)
	require.ErrorIs(err, ErrProposalNotActive)
	env.pastVotingEnd(t, proposalID)
	_, err = env.gov.FinalizeProposal(proposalID)
	require.ErrorIs(err, ErrProposalNotActive)
}

func TestFinalizeWrongKind(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)

	release := env.propose(t, 0)
	edit := env.propose(t, MaterialEditIndex)
	require.NoError(env.gov.CastVote(alice, release, true))
	require.NoError(env.gov.CastVote(alice, edit, true))
	env.pastVotingEnd(t, release)

	// Each finalizer only settles its own kind.
	_, err := env.gov.FinalizeProposal(edit)
	require.ErrorIs(err, ErrInvalidMilestone)
	_, err = env.gov.FinalizeMaterialEdit(release, [32]byte{1}, week, 1, 1, [escrow.MaxMilestones]uint16{100})
	require.ErrorIs(err, ErrInvalidMilestone)
}

func TestMaterialEditEndToEnd(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)
	env.back(t, bob, 50_000)

	proposalID := env.propose(t, MaterialEditIndex)
	require.NoError(env.gov.CastVote(alice, proposalID, true))
	require.NoError(env.gov.CastVote(bob, proposalID, false))
	env.pastVotingEnd(t, proposalID)

	newHash := [32]byte{7}
	newPcts := [escrow.MaxMilestones]uint16{25, 75}
	newDeadline := env.clock.Time().Unix() + 120*24*3600
	status, err := env.gov.FinalizeMaterialEdit(
		proposalID, newHash, week, 2_000_000, newDeadline, newPcts,
	)
	require.NoError(err)
	require.Equal(ProposalPassed, status)

	proj, err := env.escrow.GetProject(env.project)
	require.NoError(err)
	require.Equal(uint64(2_000_000), proj.Goal)
	require.Equal(newPcts, proj.MilestonePercentages)

	terms, err := env.escrow.Store().GetTerms(env.project)
	require.NoError(err)
	require.Equal(newHash, terms.TermsHash)
	require.Equal(env.clock.Time().Unix()+week, terms.RefundWindowEnd)

	// The dissenter can exit during the window.
	require.NoError(env.escrow.OptOut(bob, env.project))
	bal, err := env.bank.Balance(bob)
	require.NoError(err)
	require.Equal(uint64(48_000), bal)
}

func TestMaterialEditInvalidPercentagesAborts(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	env.back(t, alice, 100_000)

	proposalID := env.propose(t, MaterialEditIndex)
	require.NoError(env.gov.CastVote(alice, proposalID, true))
	env.pastVotingEnd(t, proposalID)

	_, err := env.gov.FinalizeMaterialEdit(
		proposalID, [32]byte{1}, week, 1_000_000,
		env.clock.Time().Unix()+3600, [escrow.MaxMilestones]uint16{50, 49},
	)
	require.ErrorIs(err, escrow.ErrInvalidPercentages)
}
