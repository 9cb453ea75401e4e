// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bank implements the token custody primitive that the escrow and
// governance components move funds through: per-identity balances, a
// tracked circulating supply, and an interceptor hook on every transfer.
package bank

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"
)

var (
	balancePrefix = []byte("balance:")
	supplyKey     = []byte("supply")

	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// TransferHook is consulted before every transfer. The platform's
// transfer-interceptor collaborator plugs in here; the default approves
// everything.
type TransferHook interface {
	CheckTransfer(from, to ids.ShortID, amount uint64) error
}

type approveAll struct{}

func (approveAll) CheckTransfer(ids.ShortID, ids.ShortID, uint64) error {
	return nil
}

// ApproveAll returns the pass-through transfer hook.
func ApproveAll() TransferHook {
	return approveAll{}
}

// Bank tracks balances in the given database. Callers serialize access; all
// mutations are assumed to run inside the VM's per-operation transaction.
type Bank struct {
	db   database.Database
	hook TransferHook
	log  log.Logger
}

func New(db database.Database, hook TransferHook, log log.Logger) *Bank {
	if hook == nil {
		hook = ApproveAll()
	}
	return &Bank{
		db:   db,
		hook: hook,
		log:  log,
	}
}

func balanceKey(addr ids.ShortID) []byte {
	return append(balancePrefix, addr[:]...)
}

func (b *Bank) getUint64(key []byte) (uint64, error) {
	data, err := b.db.Get(key)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	case len(data) != 8:
		return 0, fmt.Errorf("corrupt uint64 record: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (b *Bank) putUint64(key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return b.db.Put(key, buf)
}

// Balance returns the balance of addr; unknown identities hold zero.
func (b *Bank) Balance(addr ids.ShortID) (uint64, error) {
	return b.getUint64(balanceKey(addr))
}

// Supply returns the tracked circulating supply.
func (b *Bank) Supply() (uint64, error) {
	return b.getUint64(supplyKey)
}

// Mint credits amount to addr and grows the supply. Used by genesis
// allocation and the platform-token facility.
func (b *Bank) Mint(to ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	supply, err := b.Supply()
	if err != nil {
		return err
	}
	newSupply, err := safemath.Add(supply, amount)
	if err != nil {
		return fmt.Errorf("supply overflow: %w", err)
	}
	balance, err := b.Balance(to)
	if err != nil {
		return err
	}
	newBalance, err := safemath.Add(balance, amount)
	if err != nil {
		return fmt.Errorf("balance overflow: %w", err)
	}
	if err := b.putUint64(balanceKey(to), newBalance); err != nil {
		return err
	}
	return b.putUint64(supplyKey, newSupply)
}

// Transfer moves amount from one identity to another after consulting the
// transfer hook.
func (b *Bank) Transfer(from, to ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if err := b.hook.CheckTransfer(from, to, amount); err != nil {
		return err
	}

	fromBalance, err := b.Balance(from)
	if err != nil {
		return err
	}
	newFrom, err := safemath.Sub(fromBalance, amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	// A self-transfer conserves the balance. Writing the credit over the
	// debit would instead mint the amount out of thin air.
	if from == to {
		return nil
	}
	toBalance, err := b.Balance(to)
	if err != nil {
		return err
	}
	newTo, err := safemath.Add(toBalance, amount)
	if err != nil {
		return fmt.Errorf("balance overflow: %w", err)
	}

	if err := b.putUint64(balanceKey(from), newFrom); err != nil {
		return err
	}
	if err := b.putUint64(balanceKey(to), newTo); err != nil {
		return err
	}
	b.log.Debug("transfer",
		log.Stringer("from", from),
		log.Stringer("to", to),
		log.Uint64("amount", amount),
	)
	return nil
}

// Burn destroys amount held by addr, shrinking the supply.
func (b *Bank) Burn(from ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	balance, err := b.Balance(from)
	if err != nil {
		return err
	}
	newBalance, err := safemath.Sub(balance, amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	supply, err := b.Supply()
	if err != nil {
		return err
	}
	newSupply, err := safemath.Sub(supply, amount)
	if err != nil {
		return fmt.Errorf("supply underflow: %w", err)
	}
	if err := b.putUint64(balanceKey(from), newBalance); err != nil {
		return err
	}
	return b.putUint64(supplyKey, newSupply)
}
