// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fundvm assembles the escrow, governance, and token components
// into one state machine. Every exported operation runs against a
// versioned view of the database and commits only if the whole operation
// succeeded, so a failure in any step leaves no partial writes behind.
package fundvm

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/rpc/v2"
	rpcjson "github.com/gorilla/rpc/v2/json"
	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/fundvm/bank"
	"github.com/luxfi/fundvm/escrow"
	"github.com/luxfi/fundvm/governance"
	"github.com/luxfi/fundvm/metrics"
	"github.com/luxfi/fundvm/utils/timer/mockable"
)

// Version of the fund VM.
const Version = "1.0.0"

var initializedKey = []byte("vm_initialized")

// VM is the crowdfunding state machine.
type VM struct {
	config Config
	log    log.Logger
	clock  mockable.Clock

	baseDB database.Database
	db     *versiondb.Database

	bank   *bank.Bank
	escrow *escrow.Escrow
	gov    *governance.Governance

	metrics  metrics.Metrics
	registry metric.Registry

	// lock serializes operations so each one sees and commits a
	// consistent snapshot.
	lock sync.Mutex
}

// New builds the VM over baseDB. On first start it wires the escrow
// release authority to the governance component, applies the genesis
// allocations, and stores the governance tuning from the config.
func New(baseDB database.Database, config Config, logger log.Logger) (*VM, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	vm := &VM{
		config:   config,
		log:      logger,
		baseDB:   baseDB,
		db:       versiondb.New(baseDB),
		registry: metric.NewRegistry(),
	}

	m, err := metrics.New(vm.registry)
	if err != nil {
		return nil, err
	}
	vm.metrics = m

	vm.bank = bank.New(vm.db, nil, logger)
	vm.escrow = escrow.New(
		escrow.NewStore(vm.db),
		vm.bank,
		&vm.clock,
		logger,
		config.IsAdmin,
		config.Treasury,
	)
	vm.gov = governance.New(
		governance.NewStore(vm.db),
		vm.escrow,
		&vm.clock,
		logger,
		config.IsAdmin,
		config.ComponentID,
	)

	if err := vm.bootstrap(); err != nil {
		vm.db.Abort()
		return nil, err
	}
	return vm, nil
}

// bootstrap runs the one-time genesis wiring and commits it.
func (vm *VM) bootstrap() error {
	done, err := vm.db.Has(initializedKey)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if err := vm.escrow.Store().PutConfig(&escrow.Config{
		ReleaseAuthority: vm.gov.ReleaseAuthority(),
	}); err != nil {
		return err
	}
	if vm.config.MinVotingPeriod > 0 {
		if err := vm.gov.Store().PutConfig(&governance.Config{
			AllowEarlyFinalize:  vm.config.AllowEarlyFinalize,
			MinVotingPeriodSecs: vm.config.MinVotingPeriod,
		}); err != nil {
			return err
		}
	}
	for _, alloc := range vm.config.GenesisAllocations {
		if err := vm.bank.Mint(alloc.Address, alloc.Amount); err != nil {
			return err
		}
	}
	if err := vm.db.Put(initializedKey, []byte{1}); err != nil {
		return err
	}
	if err := vm.db.Commit(); err != nil {
		return err
	}

	vm.log.Info("genesis applied",
		log.Stringer("releaseAuthority", vm.gov.ReleaseAuthority()),
		log.Uint64("allocations", uint64(len(vm.config.GenesisAllocations))),
	)
	return nil
}

// run executes op under the VM lock and commits its writes. Any error
// aborts the versioned view, discarding everything op wrote.
func (vm *VM) run(op func() error) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := op(); err != nil {
		vm.db.Abort()
		vm.metrics.IncOperationErrors()
		return err
	}
	return vm.db.Commit()
}

// view executes a read-only op under the VM lock.
func (vm *VM) view(op func() error) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	return op()
}

// ---- escrow operations ----

func (vm *VM) CreateProject(
	artist ids.ShortID,
	name string,
	goal uint64,
	milestonePercentages [escrow.MaxMilestones]uint16,
	deadline int64,
) (ids.ID, error) {
	var projectID ids.ID
	err := vm.run(func() (err error) {
		projectID, err = vm.escrow.CreateProject(artist, name, goal, milestonePercentages, deadline)
		return err
	})
	if err == nil {
		vm.metrics.IncProjectsCreated()
	}
	return projectID, err
}

func (vm *VM) InitializeTerms(artist ids.ShortID, project ids.ID, termsHash [32]byte) error {
	return vm.run(func() error {
		return vm.escrow.InitializeTerms(artist, project, termsHash)
	})
}

func (vm *VM) FundProject(wallet ids.ShortID, project ids.ID, amount uint64) error {
	err := vm.run(func() error {
		return vm.escrow.FundProject(wallet, project, amount)
	})
	if err == nil {
		vm.metrics.IncContributions()
	}
	return err
}

func (vm *VM) CancelProject(artist ids.ShortID, project ids.ID) error {
	return vm.run(func() error {
		return vm.escrow.CancelProject(artist, project)
	})
}

func (vm *VM) Refund(wallet ids.ShortID, project ids.ID) error {
	err := vm.run(func() error {
		return vm.escrow.Refund(wallet, project)
	})
	if err == nil {
		vm.metrics.IncRefunds()
	}
	return err
}

func (vm *VM) OptOut(wallet ids.ShortID, project ids.ID) error {
	err := vm.run(func() error {
		return vm.escrow.OptOut(wallet, project)
	})
	if err == nil {
		vm.metrics.IncRefunds()
	}
	return err
}

func (vm *VM) CompleteProject(caller ids.ShortID, project ids.ID) error {
	return vm.run(func() error {
		return vm.escrow.CompleteProject(caller, project)
	})
}

func (vm *VM) ForceCompleteProject(caller ids.ShortID, project ids.ID) error {
	return vm.run(func() error {
		return vm.escrow.ForceCompleteProject(caller, project)
	})
}

func (vm *VM) SetVoteWeight(caller ids.ShortID, project ids.ID, weight uint64) error {
	return vm.run(func() error {
		return vm.escrow.SetVoteWeight(caller, project, weight)
	})
}

// InitializeEscrowConfig is the manual counterpart of the genesis
// bootstrap wiring. On a bootstrapped deployment the config already exists
// and this rejects; it is reachable for deployments whose genesis wiring
// was deliberately skipped.
func (vm *VM) InitializeEscrowConfig(caller ids.ShortID, releaseAuthority ids.ShortID) error {
	return vm.run(func() error {
		return vm.escrow.InitializeConfig(caller, releaseAuthority)
	})
}

func (vm *VM) UpdateEscrowConfig(caller ids.ShortID, releaseAuthority ids.ShortID) error {
	return vm.run(func() error {
		return vm.escrow.UpdateConfig(caller, releaseAuthority)
	})
}

// ---- governance operations ----

func (vm *VM) InitializeGovConfig(caller ids.ShortID, allowEarlyFinalize bool, minVotingPeriodSecs int64) error {
	return vm.run(func() error {
		return vm.gov.InitializeConfig(caller, allowEarlyFinalize, minVotingPeriodSecs)
	})
}

func (vm *VM) UpdateGovConfig(caller ids.ShortID, allowEarlyFinalize bool, minVotingPeriodSecs int64) error {
	return vm.run(func() error {
		return vm.gov.UpdateConfig(caller, allowEarlyFinalize, minVotingPeriodSecs)
	})
}

func (vm *VM) CreateProposal(
	artist ids.ShortID,
	project ids.ID,
	milestoneIndex uint8,
	proofURI string,
	votingPeriodSecs int64,
	attempt uint64,
) (ids.ID, error) {
	var proposalID ids.ID
	err := vm.run(func() (err error) {
		proposalID, err = vm.gov.CreateProposal(artist, project, milestoneIndex, proofURI, votingPeriodSecs, attempt)
		return err
	})
	if err == nil {
		vm.metrics.IncProposalsCreated()
	}
	return proposalID, err
}

func (vm *VM) CastVote(voter ids.ShortID, proposal ids.ID, side bool) error {
	err := vm.run(func() error {
		return vm.gov.CastVote(voter, proposal, side)
	})
	if err == nil {
		vm.metrics.IncVotesCast()
	}
	return err
}

func (vm *VM) FinalizeProposal(proposal ids.ID) (governance.ProposalStatus, error) {
	var status governance.ProposalStatus
	err := vm.run(func() (err error) {
		status, err = vm.gov.FinalizeProposal(proposal)
		return err
	})
	if err == nil {
		vm.metrics.IncProposalsFinalized()
		if status == governance.ProposalPassed {
			vm.metrics.IncMilestonesReleased()
		}
	}
	return status, err
}

func (vm *VM) FinalizeMaterialEdit(
	proposal ids.ID,
	newTermsHash [32]byte,
	refundWindowSecs int64,
	newGoal uint64,
	newDeadline int64,
	newMilestonePercentages [escrow.MaxMilestones]uint16,
) (governance.ProposalStatus, error) {
	var status governance.ProposalStatus
	err := vm.run(func() (err error) {
		status, err = vm.gov.FinalizeMaterialEdit(
			proposal, newTermsHash, refundWindowSecs, newGoal, newDeadline, newMilestonePercentages,
		)
		return err
	})
	if err == nil {
		vm.metrics.IncProposalsFinalized()
	}
	return status, err
}

func (vm *VM) CancelProposal(caller ids.ShortID, proposal ids.ID) error {
	return vm.run(func() error {
		return vm.gov.CancelProposal(caller, proposal)
	})
}

// ---- reads ----

func (vm *VM) GetProject(project ids.ID) (*escrow.Project, error) {
	var p *escrow.Project
	err := vm.view(func() (err error) {
		p, err = vm.escrow.GetProject(project)
		return err
	})
	return p, err
}

func (vm *VM) GetBacker(project ids.ID, wallet ids.ShortID) (*escrow.Backer, error) {
	var b *escrow.Backer
	err := vm.view(func() (err error) {
		b, err = vm.escrow.GetBacker(project, wallet)
		return err
	})
	return b, err
}

func (vm *VM) GetVoteWeight(project ids.ID) (uint64, error) {
	var weight uint64
	err := vm.view(func() (err error) {
		weight, err = vm.escrow.GetVoteWeight(project)
		return err
	})
	return weight, err
}

func (vm *VM) GetTerms(project ids.ID) (*escrow.ProjectTerms, error) {
	var terms *escrow.ProjectTerms
	err := vm.view(func() (err error) {
		terms, err = vm.escrow.Store().GetTerms(project)
		return err
	})
	return terms, err
}

func (vm *VM) GetProposal(proposal ids.ID) (*governance.Proposal, error) {
	var p *governance.Proposal
	err := vm.view(func() (err error) {
		p, err = vm.gov.Store().GetProposal(proposal)
		return err
	})
	return p, err
}

func (vm *VM) GetVote(proposal ids.ID, voter ids.ShortID) (*governance.Vote, error) {
	var v *governance.Vote
	err := vm.view(func() (err error) {
		v, err = vm.gov.Store().GetVote(proposal, voter)
		return err
	})
	return v, err
}

func (vm *VM) GetAttempt(project ids.ID) (uint64, error) {
	var attempt uint64
	err := vm.view(func() (err error) {
		attempt, err = vm.gov.Store().GetAttempt(project)
		return err
	})
	return attempt, err
}

func (vm *VM) GovParams() (*governance.Config, error) {
	var cfg *governance.Config
	err := vm.view(func() (err error) {
		cfg, err = vm.gov.Params()
		return err
	})
	return cfg, err
}

func (vm *VM) Balance(addr ids.ShortID) (uint64, error) {
	var balance uint64
	err := vm.view(func() (err error) {
		balance, err = vm.bank.Balance(addr)
		return err
	})
	return balance, err
}

func (vm *VM) Supply() (uint64, error) {
	var supply uint64
	err := vm.view(func() (err error) {
		supply, err = vm.bank.Supply()
		return err
	})
	return supply, err
}

// ---- lifecycle ----

// CreateHandlers returns the JSON-RPC handlers: the fund service at the
// root and the governance service under /governance.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	codec := rpcjson.NewCodec()

	fundServer := rpc.NewServer()
	fundServer.RegisterCodec(codec, "application/json")
	fundServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	fundServer.RegisterInterceptFunc(vm.metrics.InterceptRequest)
	fundServer.RegisterAfterFunc(vm.metrics.AfterRequest)
	if err := fundServer.RegisterService(&FundService{vm: vm}, "fund"); err != nil {
		return nil, err
	}

	govServer := rpc.NewServer()
	govServer.RegisterCodec(codec, "application/json")
	govServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	govServer.RegisterInterceptFunc(vm.metrics.InterceptRequest)
	govServer.RegisterAfterFunc(vm.metrics.AfterRequest)
	if err := govServer.RegisterService(&GovernanceService{vm: vm}, "governance"); err != nil {
		return nil, err
	}

	return map[string]http.Handler{
		"":            fundServer,
		"/governance": govServer,
	}, nil
}

// HealthCheck reports basic liveness: the database must answer.
func (vm *VM) HealthCheck(context.Context) (interface{}, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	if _, err := vm.db.Has(initializedKey); err != nil {
		return nil, err
	}
	return map[string]string{"version": Version}, nil
}

func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	return errors.Join(
		vm.db.Close(),
		vm.baseDB.Close(),
	)
}
