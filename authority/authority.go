// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package authority derives the deterministic identities used for
// cross-component authorization and fund custody. No private key exists for
// any of them: an identity here is a capability, producible only by the
// component that owns the derivation inputs, and the receiving side
// re-derives the expected value from its own configuration instead of
// trusting the caller's assertion.
package authority

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

const (
	releaseTag = "release_authority"
	escrowTag  = "escrow"
	burnTag    = "burn_vault"
)

func derive(tag string, seed []byte) ids.ShortID {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write(seed)
	digest := h.Sum(nil)
	addr, _ := ids.ToShortID(digest[:20])
	return addr
}

// Release returns the identity the governance component presents when
// instructing escrow that a vote passed. It is a pure function of the
// governance component's own ID.
func Release(governanceID ids.ID) ids.ShortID {
	return Derive(releaseTag, governanceID)
}

// Escrow returns the custody identity holding a project's escrowed funds.
func Escrow(projectID ids.ID) ids.ShortID {
	return Derive(escrowTag, projectID)
}

// BurnVault returns the staging identity the funding fee burn flows
// through.
func BurnVault(componentID ids.ID) ids.ShortID {
	return Derive(burnTag, componentID)
}

// Derive returns the identity for an arbitrary domain tag and seed.
func Derive(tag string, seed ids.ID) ids.ShortID {
	return derive(tag, seed[:])
}
