// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fundvm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/luxfi/ids"

	"github.com/luxfi/fundvm/escrow"
	"github.com/luxfi/fundvm/utils/json"
)

var errBadTermsHash = errors.New("terms hash must be 32 hex-encoded bytes")

// FundService provides the JSON-RPC endpoints for projects, funding, and
// refunds.
type FundService struct {
	vm *VM
}

// GovernanceService provides the JSON-RPC endpoints for proposals and
// voting.
type GovernanceService struct {
	vm *VM
}

func parseTermsHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(hash) {
		return hash, errBadTermsHash
	}
	copy(hash[:], raw)
	return hash, nil
}

func parsePercentages(pcts []uint16) ([escrow.MaxMilestones]uint16, error) {
	var out [escrow.MaxMilestones]uint16
	if len(pcts) > escrow.MaxMilestones {
		return out, fmt.Errorf("at most %d milestones", escrow.MaxMilestones)
	}
	copy(out[:], pcts)
	return out, nil
}

// ======== Fund API ========

type CreateProjectArgs struct {
	Artist               string      `json:"artist"`
	Name                 string      `json:"name"`
	Goal                 json.Uint64 `json:"goal"`
	MilestonePercentages []uint16    `json:"milestonePercentages"`
	Deadline             int64       `json:"deadline"`
}

type CreateProjectReply struct {
	ProjectID string `json:"projectID"`
}

func (s *FundService) CreateProject(_ *http.Request, args *CreateProjectArgs, reply *CreateProjectReply) error {
	artist, err := ids.ShortFromString(args.Artist)
	if err != nil {
		return err
	}
	pcts, err := parsePercentages(args.MilestonePercentages)
	if err != nil {
		return err
	}
	projectID, err := s.vm.CreateProject(artist, args.Name, uint64(args.Goal), pcts, args.Deadline)
	if err != nil {
		return err
	}
	reply.ProjectID = projectID.String()
	return nil
}

type InitializeTermsArgs struct {
	Artist    string `json:"artist"`
	ProjectID string `json:"projectID"`
	TermsHash string `json:"termsHash"`
}

type EmptyReply struct{}

func (s *FundService) InitializeTerms(_ *http.Request, args *InitializeTermsArgs, _ *EmptyReply) error {
	artist, err := ids.ShortFromString(args.Artist)
	if err != nil {
		return err
	}
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	hash, err := parseTermsHash(args.TermsHash)
	if err != nil {
		return err
	}
	return s.vm.InitializeTerms(artist, projectID, hash)
}

type FundProjectArgs struct {
	Wallet    string      `json:"wallet"`
	ProjectID string      `json:"projectID"`
	Amount    json.Uint64 `json:"amount"`
}

func (s *FundService) FundProject(_ *http.Request, args *FundProjectArgs, _ *EmptyReply) error {
	wallet, err := ids.ShortFromString(args.Wallet)
	if err != nil {
		return err
	}
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	return s.vm.FundProject(wallet, projectID, uint64(args.Amount))
}

type ProjectCallArgs struct {
	Caller    string `json:"caller"`
	ProjectID string `json:"projectID"`
}

func (args *ProjectCallArgs) parse() (ids.ShortID, ids.ID, error) {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return ids.ShortEmpty, ids.Empty, err
	}
	projectID, err := ids.FromString(args.ProjectID)
	return caller, projectID, err
}

func (s *FundService) CancelProject(_ *http.Request, args *ProjectCallArgs, _ *EmptyReply) error {
	caller, projectID, err := args.parse()
	if err != nil {
		return err
	}
	return s.vm.CancelProject(caller, projectID)
}

func (s *FundService) Refund(_ *http.Request, args *ProjectCallArgs, _ *EmptyReply) error {
	caller, projectID, err := args.parse()
	if err != nil {
		return err
	}
	return s.vm.Refund(caller, projectID)
}

func (s *FundService) OptOut(_ *http.Request, args *ProjectCallArgs, _ *EmptyReply) error {
	caller, projectID, err := args.parse()
	if err != nil {
		return err
	}
	return s.vm.OptOut(caller, projectID)
}

func (s *FundService) CompleteProject(_ *http.Request, args *ProjectCallArgs, _ *EmptyReply) error {
	caller, projectID, err := args.parse()
	if err != nil {
		return err
	}
	return s.vm.CompleteProject(caller, projectID)
}

func (s *FundService) ForceCompleteProject(_ *http.Request, args *ProjectCallArgs, _ *EmptyReply) error {
	caller, projectID, err := args.parse()
	if err != nil {
		return err
	}
	return s.vm.ForceCompleteProject(caller, projectID)
}

type SetVoteWeightArgs struct {
	Caller    string      `json:"caller"`
	ProjectID string      `json:"projectID"`
	Weight    json.Uint64 `json:"weight"`
}

func (s *FundService) SetVoteWeight(_ *http.Request, args *SetVoteWeightArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	return s.vm.SetVoteWeight(caller, projectID, uint64(args.Weight))
}

type UpdateConfigArgs struct {
	Caller           string `json:"caller"`
	ReleaseAuthority string `json:"releaseAuthority"`
}

// InitializeConfig sets the escrow release authority on a deployment whose
// genesis bootstrap did not. Administrator only; rejects once configured.
func (s *FundService) InitializeConfig(_ *http.Request, args *UpdateConfigArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	releaseAuthority, err := ids.ShortFromString(args.ReleaseAuthority)
	if err != nil {
		return err
	}
	return s.vm.InitializeEscrowConfig(caller, releaseAuthority)
}

// UpdateConfig rotates the escrow release authority. Administrator only.
func (s *FundService) UpdateConfig(_ *http.Request, args *UpdateConfigArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	releaseAuthority, err := ids.ShortFromString(args.ReleaseAuthority)
	if err != nil {
		return err
	}
	return s.vm.UpdateEscrowConfig(caller, releaseAuthority)
}

type GetProjectArgs struct {
	ProjectID string `json:"projectID"`
}

type GetProjectReply struct {
	Artist               string      `json:"artist"`
	Name                 string      `json:"name"`
	Goal                 json.Uint64 `json:"goal"`
	MilestonePercentages []uint16    `json:"milestonePercentages"`
	Deadline             int64       `json:"deadline"`
	Status               string      `json:"status"`
	TotalRaised          json.Uint64 `json:"totalRaised"`
	BackerCount          json.Uint32 `json:"backerCount"`
	CurrentMilestone     uint8       `json:"currentMilestone"`
	TotalVoteWeight      json.Uint64 `json:"totalVoteWeight"`
}

func (s *FundService) GetProject(_ *http.Request, args *GetProjectArgs, reply *GetProjectReply) error {
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	p, err := s.vm.GetProject(projectID)
	if err != nil {
		return err
	}
	weight, err := s.vm.GetVoteWeight(projectID)
	if err != nil {
		return err
	}

	reply.Artist = p.Artist.String()
	reply.Name = p.Name
	reply.Goal = json.Uint64(p.Goal)
	reply.MilestonePercentages = p.MilestonePercentages[:]
	reply.Deadline = p.Deadline
	reply.Status = p.Status.String()
	reply.TotalRaised = json.Uint64(p.TotalRaised)
	reply.BackerCount = json.Uint32(p.BackerCount)
	reply.CurrentMilestone = p.CurrentMilestone
	reply.TotalVoteWeight = json.Uint64(weight)
	return nil
}

type GetBackerArgs struct {
	ProjectID string `json:"projectID"`
	Wallet    string `json:"wallet"`
}

type GetBackerReply struct {
	Amount json.Uint64 `json:"amount"`
}

func (s *FundService) GetBacker(_ *http.Request, args *GetBackerArgs, reply *GetBackerReply) error {
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	wallet, err := ids.ShortFromString(args.Wallet)
	if err != nil {
		return err
	}
	b, err := s.vm.GetBacker(projectID, wallet)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(b.Amount)
	return nil
}

type GetTermsArgs struct {
	ProjectID string `json:"projectID"`
}

type GetTermsReply struct {
	TermsHash       string      `json:"termsHash"`
	Version         json.Uint32 `json:"version"`
	RefundWindowEnd int64       `json:"refundWindowEnd"`
}

func (s *FundService) GetTerms(_ *http.Request, args *GetTermsArgs, reply *GetTermsReply) error {
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	terms, err := s.vm.GetTerms(projectID)
	if err != nil {
		return err
	}
	reply.TermsHash = hex.EncodeToString(terms.TermsHash[:])
	reply.Version = json.Uint32(terms.Version)
	reply.RefundWindowEnd = terms.RefundWindowEnd
	return nil
}

type BalanceArgs struct {
	Address string `json:"address"`
}

type BalanceReply struct {
	Balance json.Uint64 `json:"balance"`
}

func (s *FundService) Balance(_ *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	addr, err := ids.ShortFromString(args.Address)
	if err != nil {
		return err
	}
	balance, err := s.vm.Balance(addr)
	if err != nil {
		return err
	}
	reply.Balance = json.Uint64(balance)
	return nil
}

// ======== Governance API ========

type GovConfigArgs struct {
	Caller              string `json:"caller"`
	AllowEarlyFinalize  bool   `json:"allowEarlyFinalize"`
	MinVotingPeriodSecs int64  `json:"minVotingPeriodSecs"`
}

func (s *GovernanceService) InitializeConfig(_ *http.Request, args *GovConfigArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	return s.vm.InitializeGovConfig(caller, args.AllowEarlyFinalize, args.MinVotingPeriodSecs)
}

func (s *GovernanceService) UpdateConfig(_ *http.Request, args *GovConfigArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	return s.vm.UpdateGovConfig(caller, args.AllowEarlyFinalize, args.MinVotingPeriodSecs)
}

type GetParamsReply struct {
	AllowEarlyFinalize  bool  `json:"allowEarlyFinalize"`
	MinVotingPeriodSecs int64 `json:"minVotingPeriodSecs"`
}

func (s *GovernanceService) GetParams(_ *http.Request, _ *struct{}, reply *GetParamsReply) error {
	params, err := s.vm.GovParams()
	if err != nil {
		return err
	}
	reply.AllowEarlyFinalize = params.AllowEarlyFinalize
	reply.MinVotingPeriodSecs = params.MinVotingPeriodSecs
	return nil
}

type CreateProposalArgs struct {
	Artist           string      `json:"artist"`
	ProjectID        string      `json:"projectID"`
	MilestoneIndex   uint8       `json:"milestoneIndex"`
	ProofURI         string      `json:"proofUri"`
	VotingPeriodSecs int64       `json:"votingPeriodSecs"`
	Attempt          json.Uint64 `json:"attempt"`
}

type CreateProposalReply struct {
	ProposalID string `json:"proposalID"`
}

func (s *GovernanceService) CreateProposal(_ *http.Request, args *CreateProposalArgs, reply *CreateProposalReply) error {
	artist, err := ids.ShortFromString(args.Artist)
	if err != nil {
		return err
	}
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	proposalID, err := s.vm.CreateProposal(
		artist, projectID, args.MilestoneIndex, args.ProofURI,
		args.VotingPeriodSecs, uint64(args.Attempt),
	)
	if err != nil {
		return err
	}
	reply.ProposalID = proposalID.String()
	return nil
}

type CastVoteArgs struct {
	Voter      string `json:"voter"`
	ProposalID string `json:"proposalID"`
	Side       bool   `json:"side"`
}

func (s *GovernanceService) CastVote(_ *http.Request, args *CastVoteArgs, _ *EmptyReply) error {
	voter, err := ids.ShortFromString(args.Voter)
	if err != nil {
		return err
	}
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	return s.vm.CastVote(voter, proposalID, args.Side)
}

type FinalizeProposalArgs struct {
	ProposalID string `json:"proposalID"`
}

type FinalizeProposalReply struct {
	Status string `json:"status"`
}

func (s *GovernanceService) FinalizeProposal(_ *http.Request, args *FinalizeProposalArgs, reply *FinalizeProposalReply) error {
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	status, err := s.vm.FinalizeProposal(proposalID)
	if err != nil {
		return err
	}
	reply.Status = status.String()
	return nil
}

type FinalizeMaterialEditArgs struct {
	ProposalID              string      `json:"proposalID"`
	NewTermsHash            string      `json:"newTermsHash"`
	RefundWindowSecs        int64       `json:"refundWindowSecs"`
	NewGoal                 json.Uint64 `json:"newGoal"`
	NewDeadline             int64       `json:"newDeadline"`
	NewMilestonePercentages []uint16    `json:"newMilestonePercentages"`
}

func (s *GovernanceService) FinalizeMaterialEdit(_ *http.Request, args *FinalizeMaterialEditArgs, reply *FinalizeProposalReply) error {
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	hash, err := parseTermsHash(args.NewTermsHash)
	if err != nil {
		return err
	}
	pcts, err := parsePercentages(args.NewMilestonePercentages)
	if err != nil {
		return err
	}
	status, err := s.vm.FinalizeMaterialEdit(
		proposalID, hash, args.RefundWindowSecs,
		uint64(args.NewGoal), args.NewDeadline, pcts,
	)
	if err != nil {
		return err
	}
	reply.Status = status.String()
	return nil
}

type CancelProposalArgs struct {
	Caller     string `json:"caller"`
	ProposalID string `json:"proposalID"`
}

func (s *GovernanceService) CancelProposal(_ *http.Request, args *CancelProposalArgs, _ *EmptyReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return err
	}
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	return s.vm.CancelProposal(caller, proposalID)
}

type GetProposalArgs struct {
	ProposalID string `json:"proposalID"`
}

type GetProposalReply struct {
	ProjectID      string      `json:"projectID"`
	MilestoneIndex uint8       `json:"milestoneIndex"`
	ProofURI       string      `json:"proofUri"`
	VotesFor       json.Uint64 `json:"votesFor"`
	VotesAgainst   json.Uint64 `json:"votesAgainst"`
	Status         string      `json:"status"`
	StartTime      int64       `json:"startTime"`
	EndTime        int64       `json:"endTime"`
	Creator        string      `json:"creator"`
}

func (s *GovernanceService) GetProposal(_ *http.Request, args *GetProposalArgs, reply *GetProposalReply) error {
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	p, err := s.vm.GetProposal(proposalID)
	if err != nil {
		return err
	}
	reply.ProjectID = p.Project.String()
	reply.MilestoneIndex = p.MilestoneIndex
	reply.ProofURI = p.ProofURI
	reply.VotesFor = json.Uint64(p.VotesFor)
	reply.VotesAgainst = json.Uint64(p.VotesAgainst)
	reply.Status = p.Status.String()
	reply.StartTime = p.StartTime
	reply.EndTime = p.EndTime
	reply.Creator = p.Creator.String()
	return nil
}

type GetVoteArgs struct {
	ProposalID string `json:"proposalID"`
	Voter      string `json:"voter"`
}

type GetVoteReply struct {
	Weight json.Uint64 `json:"weight"`
	Side   bool        `json:"side"`
}

func (s *GovernanceService) GetVote(_ *http.Request, args *GetVoteArgs, reply *GetVoteReply) error {
	proposalID, err := ids.FromString(args.ProposalID)
	if err != nil {
		return err
	}
	voter, err := ids.ShortFromString(args.Voter)
	if err != nil {
		return err
	}
	v, err := s.vm.GetVote(proposalID, voter)
	if err != nil {
		return err
	}
	reply.Weight = json.Uint64(v.Weight)
	reply.Side = v.Side
	return nil
}

type GetAttemptArgs struct {
	ProjectID string `json:"projectID"`
}

type GetAttemptReply struct {
	Attempt json.Uint64 `json:"attempt"`
}

// GetAttempt returns the attempt number a caller must pass to
// CreateProposal for this project.
func (s *GovernanceService) GetAttempt(_ *http.Request, args *GetAttemptArgs, reply *GetAttemptReply) error {
	projectID, err := ids.FromString(args.ProjectID)
	if err != nil {
		return err
	}
	attempt, err := s.vm.GetAttempt(projectID)
	if err != nil {
		return err
	}
	reply.Attempt = json.Uint64(attempt)
	return nil
}
