// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"

	"github.com/luxfi/metric"
)

var _ Metrics = (*metricsImpl)(nil)

// Metrics counts the operations the VM settles.
type Metrics interface {
	metric.APIInterceptor

	IncProjectsCreated()
	IncContributions()
	IncMilestonesReleased()
	IncRefunds()
	IncProposalsCreated()
	IncVotesCast()
	IncProposalsFinalized()
	IncOperationErrors()
}

type metricsImpl struct {
	numProjectsCreated,
	numContributions,
	numMilestonesReleased,
	numRefunds,
	numProposalsCreated,
	numVotesCast,
	numProposalsFinalized,
	numOperationErrors metric.Counter

	metric.APIInterceptor
}

func (m *metricsImpl) IncProjectsCreated()    { m.numProjectsCreated.Inc() }
func (m *metricsImpl) IncContributions()      { m.numContributions.Inc() }
func (m *metricsImpl) IncMilestonesReleased() { m.numMilestonesReleased.Inc() }
func (m *metricsImpl) IncRefunds()            { m.numRefunds.Inc() }
func (m *metricsImpl) IncProposalsCreated()   { m.numProposalsCreated.Inc() }
func (m *metricsImpl) IncVotesCast()          { m.numVotesCast.Inc() }
func (m *metricsImpl) IncProposalsFinalized() { m.numProposalsFinalized.Inc() }
func (m *metricsImpl) IncOperationErrors()    { m.numOperationErrors.Inc() }

func New(registerer metric.Registerer) (Metrics, error) {
	registry, ok := registerer.(metric.Registry)
	if !ok {
		return nil, errors.New("registerer must implement metric.Registry")
	}

	m := &metricsImpl{}
	m.numProjectsCreated = metric.NewCounter(metric.CounterOpts{
		Name: "projects_created",
		Help: "Number of projects created",
	})
	m.numContributions = metric.NewCounter(metric.CounterOpts{
		Name: "contributions",
		Help: "Number of accepted contributions",
	})
	m.numMilestonesReleased = metric.NewCounter(metric.CounterOpts{
		Name: "milestones_released",
		Help: "Number of milestone payouts released to artists",
	})
	m.numRefunds = metric.NewCounter(metric.CounterOpts{
		Name: "refunds",
		Help: "Number of refunds and opt-outs paid back to backers",
	})
	m.numProposalsCreated = metric.NewCounter(metric.CounterOpts{
		Name: "proposals_created",
		Help: "Number of governance proposals opened",
	})
	m.numVotesCast = metric.NewCounter(metric.CounterOpts{
		Name: "votes_cast",
		Help: "Number of ballots recorded",
	})
	m.numProposalsFinalized = metric.NewCounter(metric.CounterOpts{
		Name: "proposals_finalized",
		Help: "Number of proposals settled as passed or rejected",
	})
	m.numOperationErrors = metric.NewCounter(metric.CounterOpts{
		Name: "operation_errors",
		Help: "Number of operations rejected and rolled back",
	})

	apiRequestMetric, err := metric.NewAPIInterceptor(registry)
	m.APIInterceptor = apiRequestMetric
	// Counters are self-registering when created with NewCounter.
	return m, err
}
