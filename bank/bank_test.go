// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bank

import (
	"errors"
	"math"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func newTestBank(t *testing.T, hook TransferHook) *Bank {
	t.Helper()
	return New(memdb.New(), hook, log.NewNoOpLogger())
}

func TestMintTransferBurn(t *testing.T) {
	require := require.New(t)
	b := newTestBank(t, nil)

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(b.Mint(alice, 1000))
	supply, err := b.Supply()
	require.NoError(err)
	require.Equal(uint64(1000), supply)

	require.NoError(b.Transfer(alice, bob, 400))
	aliceBal, err := b.Balance(alice)
	require.NoError(err)
	require.Equal(uint64(600), aliceBal)
	bobBal, err := b.Balance(bob)
	require.NoError(err)
	require.Equal(uint64(400), bobBal)

	// Supply is conserved by transfers.
	supply, err = b.Supply()
	require.NoError(err)
	require.Equal(uint64(1000), supply)

	require.NoError(b.Burn(bob, 400))
	supply, err = b.Supply()
	require.NoError(err)
	require.Equal(uint64(600), supply)
	bobBal, err = b.Balance(bob)
	require.NoError(err)
	require.Zero(bobBal)
}

func TestTransferInsufficient(t *testing.T) {
	require := require.New(t)
	b := newTestBank(t, nil)

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	require.NoError(b.Mint(alice, 10))

	err := b.Transfer(alice, bob, 11)
	require.ErrorIs(err, ErrInsufficientBalance)

	err = b.Transfer(alice, bob, 0)
	require.ErrorIs(err, ErrZeroAmount)
}

func TestSelfTransferConserves(t *testing.T) {
	require := require.New(t)
	b := newTestBank(t, nil)

	alice := ids.GenerateTestShortID()
	require.NoError(b.Mint(alice, 100))

	// A transfer to oneself must neither create nor destroy funds.
	require.NoError(b.Transfer(alice, alice, 50))
	aliceBal, err := b.Balance(alice)
	require.NoError(err)
	require.Equal(uint64(100), aliceBal)

	supply, err := b.Supply()
	require.NoError(err)
	require.Equal(uint64(100), supply)

	// The balance check still applies.
	err = b.Transfer(alice, alice, 150)
	require.ErrorIs(err, ErrInsufficientBalance)
}

func TestMintOverflow(t *testing.T) {
	require := require.New(t)
	b := newTestBank(t, nil)

	alice := ids.GenerateTestShortID()
	require.NoError(b.Mint(alice, math.MaxUint64))
	require.Error(b.Mint(alice, 1))
}

type denyHook struct{ err error }

func (h denyHook) CheckTransfer(ids.ShortID, ids.ShortID, uint64) error {
	return h.err
}

func TestTransferHook(t *testing.T) {
	require := require.New(t)
	errDenied := errors.New("denied")
	b := newTestBank(t, denyHook{err: errDenied})

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	require.NoError(b.Mint(alice, 100))

	err := b.Transfer(alice, bob, 10)
	require.ErrorIs(err, errDenied)

	// Balances untouched on a denied transfer.
	aliceBal, err := b.Balance(alice)
	require.NoError(err)
	require.Equal(uint64(100), aliceBal)
}
