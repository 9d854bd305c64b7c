// Package ledger implements the fungible balance books the vault builds on: a
// base Book with a holder registry, the admission-controlled RequestBook for
// value submitted but not yet settled, and the ClaimBook for value settled but
// not yet paid out.
package ledger

import (
	"container/list"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// Book is a fungible balance ledger with an enumerable holder registry.
// Holders are kept in insertion order with O(1) membership and removal; an
// address is a holder exactly while its balance is positive.
type Book struct {
	mu       sync.RWMutex
	balances map[fund.Address]decimal.Decimal
	supply   decimal.Decimal
	holders  *list.List
	index    map[fund.Address]*list.Element
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		balances: make(map[fund.Address]decimal.Decimal),
		supply:   decimal.Zero,
		holders:  list.New(),
		index:    make(map[fund.Address]*list.Element),
	}
}

// BalanceOf returns the balance of addr.
func (b *Book) BalanceOf(addr fund.Address) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[addr]
}

// TotalSupply returns the sum of all balances.
func (b *Book) TotalSupply() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.supply
}

// Mint credits amount to addr and grows the total supply.
func (b *Book) Mint(addr fund.Address, amount decimal.Decimal) error {
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(addr, amount)
	b.supply = b.supply.Add(amount)
	return nil
}

// Burn debits amount from addr and shrinks the total supply. Fails with
// InsufficientBalance on under-burn.
func (b *Book) Burn(addr fund.Address, amount decimal.Decimal) error {
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(addr, amount); err != nil {
		return err
	}
	b.supply = b.supply.Sub(amount)
	return nil
}

// Move transfers amount between two balances without touching supply.
func (b *Book) Move(from, to fund.Address, amount decimal.Decimal) error {
	if from.IsZero() || to.IsZero() {
		return fund.ErrZeroAddress
	}
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

// credit and debit maintain the holder registry across the zero boundary.
// Callers hold b.mu.
func (b *Book) credit(addr fund.Address, amount decimal.Decimal) {
	old := b.balances[addr]
	b.balances[addr] = old.Add(amount)
	if old.Sign() == 0 {
		b.index[addr] = b.holders.PushBack(addr)
	}
}

func (b *Book) debit(addr fund.Address, amount decimal.Decimal) error {
	old := b.balances[addr]
	if old.LessThan(amount) {
		return fund.ErrInsufficientBalance
	}
	next := old.Sub(amount)
	if next.Sign() == 0 {
		delete(b.balances, addr)
		b.holders.Remove(b.index[addr])
		delete(b.index, addr)
		return nil
	}
	b.balances[addr] = next
	return nil
}

// HolderCount returns the number of addresses with a positive balance.
func (b *Book) HolderCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holders.Len()
}

// HoldersInRange returns count holders starting at start, in insertion order.
// Fails with OutOfRange if start is at or past the holder count, or the range
// overruns it.
func (b *Book) HoldersInRange(start, count int) ([]fund.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := b.holders.Len()
	if start < 0 || count < 0 || start >= total || start+count > total {
		return nil, fund.ErrOutOfRange
	}
	out := make([]fund.Address, 0, count)
	e := b.holders.Front()
	for i := 0; i < start; i++ {
		e = e.Next()
	}
	for i := 0; i < count; i++ {
		out = append(out, e.Value.(fund.Address))
		e = e.Next()
	}
	return out, nil
}

// Holders returns every holder in insertion order.
func (b *Book) Holders() []fund.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]fund.Address, 0, b.holders.Len())
	for e := b.holders.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(fund.Address))
	}
	return out
}
