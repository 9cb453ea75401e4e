// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fundvm

import (
	"errors"

	"github.com/luxfi/ids"
)

var (
	errNoComponentID = errors.New("component id must be set")
	errNoTreasury    = errors.New("treasury address must be set")
	errNoAdmins      = errors.New("at least one administrator must be set")
)

// Allocation credits a wallet at genesis.
type Allocation struct {
	Address ids.ShortID `json:"address"`
	Amount  uint64      `json:"amount"`
}

// Config parameterizes a deployment. ComponentID seeds every derived
// identity, so two deployments with different component IDs cannot sign
// for each other's escrows.
type Config struct {
	ComponentID ids.ID        `json:"componentID"`
	Admins      []ids.ShortID `json:"admins"`
	Treasury    ids.ShortID   `json:"treasury"`

	// Governance tuning applied on first start. A zero MinVotingPeriod
	// leaves the governance config uninitialized, which falls back to the
	// 24 hour default with early finalization off.
	AllowEarlyFinalize bool  `json:"allowEarlyFinalize"`
	MinVotingPeriod    int64 `json:"minVotingPeriod"`

	GenesisAllocations []Allocation `json:"genesisAllocations"`
}

func (c *Config) Validate() error {
	switch {
	case c.ComponentID == ids.Empty:
		return errNoComponentID
	case c.Treasury == ids.ShortEmpty:
		return errNoTreasury
	case len(c.Admins) == 0:
		return errNoAdmins
	}
	return nil
}

// IsAdmin reports whether the address is a deployment administrator.
func (c *Config) IsAdmin(addr ids.ShortID) bool {
	for _, admin := range c.Admins {
		if admin == addr {
			return true
		}
	}
	return false
}
