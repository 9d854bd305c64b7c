// Package token provides the fungible-balance service used for both the
// settlement asset and the vault share token. Public transfers pass through
// the compliance and share-tax hooks; the owner-gated primitives bypass both
// and are reserved for the pipeline components.
package token

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/ledger"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
	"github.com/terminal-bench/fundvault/pkg/messaging"
)

// Service is a fungible token ledger with allowances.
type Service struct {
	name  string
	owner fund.Address
	book  *ledger.Book

	mu         sync.Mutex
	allowances map[fund.Address]map[fund.Address]decimal.Decimal

	compliance policy.CompliancePolicy
	tax        policy.ShareTaxPolicy
	bus        messaging.Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithCompliance installs the compliance hook checked on public transfers.
func WithCompliance(p policy.CompliancePolicy) Option {
	return func(s *Service) { s.compliance = p }
}

// WithShareTax installs the levy hook applied to public transfers.
func WithShareTax(p policy.ShareTaxPolicy) Option {
	return func(s *Service) { s.tax = p }
}

// WithPublisher installs the event bus transfers are announced on.
func WithPublisher(bus messaging.Publisher) Option {
	return func(s *Service) { s.bus = bus }
}

// NewService creates a token named name whose privileged primitives answer
// only to owner.
func NewService(name string, owner fund.Address, opts ...Option) *Service {
	s := &Service{
		name:       name,
		owner:      owner,
		book:       ledger.NewBook(),
		allowances: make(map[fund.Address]map[fund.Address]decimal.Decimal),
		compliance: policy.AllowAll{},
		tax:        policy.NoShareTax{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the token name.
func (s *Service) Name() string { return s.name }

// BalanceOf returns holder's balance.
func (s *Service) BalanceOf(holder fund.Address) decimal.Decimal {
	return s.book.BalanceOf(holder)
}

// TotalSupply returns the outstanding supply.
func (s *Service) TotalSupply() decimal.Decimal {
	return s.book.TotalSupply()
}

// HolderCount returns the number of addresses with positive balance.
func (s *Service) HolderCount() int {
	return s.book.HolderCount()
}

// HoldersInRange pages through holders in insertion order.
func (s *Service) HoldersInRange(start, count int) ([]fund.Address, error) {
	return s.book.HoldersInRange(start, count)
}

// Allowance returns what spender may pull from holder.
func (s *Service) Allowance(holder, spender fund.Address) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowance(holder, spender)
}

func (s *Service) allowance(holder, spender fund.Address) decimal.Decimal {
	if granted, ok := s.allowances[holder][spender]; ok {
		return granted
	}
	return decimal.Zero
}

func (s *Service) setAllowance(holder, spender fund.Address, amount decimal.Decimal) {
	if s.allowances[holder] == nil {
		s.allowances[holder] = make(map[fund.Address]decimal.Decimal)
	}
	s.allowances[holder][spender] = amount
}

// Approve lets spender pull up to amount from caller. The MaxUint sentinel
// grants an unlimited allowance that is never decremented.
func (s *Service) Approve(caller, spender fund.Address, amount decimal.Decimal) error {
	if caller.IsZero() || spender.IsZero() {
		return fund.ErrZeroAddress
	}
	if amount.Sign() < 0 || !amount.Equal(amount.Floor()) {
		return fund.ErrZeroAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAllowance(caller, spender, amount)
	return nil
}

// UpdateShareTax swaps the levy policy at runtime. Owner only; transfers in
// flight finish under the policy they started with.
func (s *Service) UpdateShareTax(caller fund.Address, p policy.ShareTaxPolicy) error {
	if caller != s.owner {
		return fund.ErrUnauthorized
	}
	if p == nil {
		return fund.ErrZeroAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tax = p
	return nil
}

// Transfer moves amount from sender to receiver, with compliance on both
// parties and the share-tax levy debited from sender on top of amount.
func (s *Service) Transfer(ctx context.Context, sender, receiver fund.Address, amount decimal.Decimal) error {
	return s.publicTransfer(ctx, sender, receiver, amount)
}

// TransferFrom moves amount from holder to receiver on spender's allowance.
func (s *Service) TransferFrom(ctx context.Context, spender, holder, receiver fund.Address, amount decimal.Decimal) error {
	if spender.IsZero() {
		return fund.ErrZeroAddress
	}
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	granted := s.allowance(holder, spender)
	unlimited := granted.Equal(fixedpoint.MaxUint)
	if !unlimited && granted.LessThan(amount) {
		return fund.ErrInsufficientAllowance
	}
	if err := s.transferLocked(ctx, holder, receiver, amount); err != nil {
		return err
	}
	if !unlimited {
		s.setAllowance(holder, spender, granted.Sub(amount))
	}
	return nil
}

func (s *Service) publicTransfer(ctx context.Context, sender, receiver fund.Address, amount decimal.Decimal) error {
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferLocked(ctx, sender, receiver, amount)
}

// transferLocked applies a public transfer under s.mu. Validation runs in
// full before any balance moves so failures leave the book untouched.
func (s *Service) transferLocked(ctx context.Context, sender, receiver fund.Address, amount decimal.Decimal) error {
	if sender.IsZero() || receiver.IsZero() {
		return fund.ErrZeroAddress
	}
	if !s.compliance.IsAllowed(sender) || !s.compliance.IsAllowed(receiver) {
		return fund.ErrForbidden
	}

	due := s.tax.TaxFor(sender, receiver, amount)
	total := amount
	for _, d := range due {
		total = total.Add(d.Amount)
	}
	if s.book.BalanceOf(sender).LessThan(total) {
		return fund.ErrInsufficientBalance
	}

	if err := s.book.Move(sender, receiver, amount); err != nil {
		return err
	}
	for _, d := range due {
		if err := s.book.Move(sender, d.Collector, d.Amount); err != nil {
			return err
		}
	}

	s.emitTransfer(ctx, sender, receiver, amount)
	return nil
}

// Mint creates amount for receiver. Owner only; no levy, no compliance.
func (s *Service) Mint(ctx context.Context, caller, receiver fund.Address, amount decimal.Decimal) error {
	if caller != s.owner {
		return fund.ErrUnauthorized
	}
	if err := s.book.Mint(receiver, amount); err != nil {
		return err
	}
	s.emitTransfer(ctx, fund.ZeroAddress, receiver, amount)
	return nil
}

// Burn destroys amount held by holder. Owner only.
func (s *Service) Burn(ctx context.Context, caller, holder fund.Address, amount decimal.Decimal) error {
	if caller != s.owner {
		return fund.ErrUnauthorized
	}
	if err := s.book.Burn(holder, amount); err != nil {
		return err
	}
	s.emitTransfer(ctx, holder, fund.ZeroAddress, amount)
	return nil
}

// Move shifts amount between accounts. Owner only; bypasses compliance and
// the levy, used for custody movements inside the pipelines.
func (s *Service) Move(ctx context.Context, caller, from, to fund.Address, amount decimal.Decimal) error {
	if caller != s.owner {
		return fund.ErrUnauthorized
	}
	if err := s.book.Move(from, to, amount); err != nil {
		return err
	}
	s.emitTransfer(ctx, from, to, amount)
	return nil
}

func (s *Service) emitTransfer(ctx context.Context, from, to fund.Address, amount decimal.Decimal) {
	// Transfers are committed at this point; a bus failure must not undo them.
	_ = messaging.Emit(ctx, s.bus, messaging.EventTypeTransfer, s.name, messaging.TransferEvent{
		Token:  s.name,
		From:   string(from),
		To:     string(to),
		Amount: amount.String(),
	})
}
