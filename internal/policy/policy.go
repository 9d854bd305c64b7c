// Package policy holds the swappable compliance and share-tax capabilities
// consulted by the token services, the vault, and the router.
package policy

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// CompliancePolicy decides whether an address may take part in transfers and
// requests. Implementations must be safe for concurrent use.
type CompliancePolicy interface {
	IsAllowed(addr fund.Address) bool
}

// AllowAll admits everyone. The default policy.
type AllowAll struct{}

func (AllowAll) IsAllowed(fund.Address) bool { return true }

// ManualBlacklist admits everyone except explicitly banned addresses.
type ManualBlacklist struct {
	roles *roles.Registry

	mu     sync.RWMutex
	banned map[fund.Address]bool
}

// NewManualBlacklist creates an empty blacklist gated through reg.
func NewManualBlacklist(reg *roles.Registry) *ManualBlacklist {
	return &ManualBlacklist{roles: reg, banned: make(map[fund.Address]bool)}
}

func (p *ManualBlacklist) IsAllowed(addr fund.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.banned[addr]
}

// UpdateBanned marks or clears addr. Admin only.
func (p *ManualBlacklist) UpdateBanned(caller, addr fund.Address, banned bool) error {
	if err := p.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if banned {
		p.banned[addr] = true
	} else {
		delete(p.banned, addr)
	}
	return nil
}

// Whitelist admits only explicitly registered addresses.
type Whitelist struct {
	roles *roles.Registry

	mu      sync.RWMutex
	allowed map[fund.Address]bool
}

// NewWhitelist creates an empty whitelist gated through reg.
func NewWhitelist(reg *roles.Registry) *Whitelist {
	return &Whitelist{roles: reg, allowed: make(map[fund.Address]bool)}
}

func (p *Whitelist) IsAllowed(addr fund.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allowed[addr]
}

// UpdateAllowed registers or removes addr. Admin only.
func (p *Whitelist) UpdateAllowed(caller, addr fund.Address, allowed bool) error {
	if err := p.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if allowed {
		p.allowed[addr] = true
	} else {
		delete(p.allowed, addr)
	}
	return nil
}

// TaxDue is one collector's cut of a share transfer.
type TaxDue struct {
	Collector fund.Address
	Amount    decimal.Decimal
}

// ShareTaxPolicy computes the levy owed on a peer-to-peer share transfer. The
// sender pays the levy on top of the transferred amount. Pipeline mints, burns,
// and custody moves are never taxed.
type ShareTaxPolicy interface {
	TaxFor(from, to fund.Address, amount decimal.Decimal) []TaxDue
}

// NoShareTax levies nothing.
type NoShareTax struct{}

func (NoShareTax) TaxFor(fund.Address, fund.Address, decimal.Decimal) []TaxDue { return nil }

// VanillaShareTax levies two flat percentages to two collectors. VIP senders
// and exempt participants on either side pay nothing.
type VanillaShareTax struct {
	roles *roles.Registry

	mu         sync.RWMutex
	collectorA fund.Address
	collectorB fund.Address
	pctA       decimal.Decimal
	pctB       decimal.Decimal
	vip        map[fund.Address]bool
	exempt     map[fund.Address]bool
}

// NewVanillaShareTax creates a tax policy with the given collectors and
// percentages in parts per SingleUnit.
func NewVanillaShareTax(reg *roles.Registry, collectorA, collectorB fund.Address, pctA, pctB decimal.Decimal) (*VanillaShareTax, error) {
	if collectorA.IsZero() || collectorB.IsZero() {
		return nil, fund.ErrZeroAddress
	}
	return &VanillaShareTax{
		roles:      reg,
		collectorA: collectorA,
		collectorB: collectorB,
		pctA:       pctA,
		pctB:       pctB,
		vip:        make(map[fund.Address]bool),
		exempt:     make(map[fund.Address]bool),
	}, nil
}

func (p *VanillaShareTax) TaxFor(from, to fund.Address, amount decimal.Decimal) []TaxDue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.vip[from] || p.exempt[from] || p.exempt[to] {
		return nil
	}
	due := make([]TaxDue, 0, 2)
	if a := fixedpoint.Fee(amount, p.pctA); a.Sign() > 0 {
		due = append(due, TaxDue{Collector: p.collectorA, Amount: a})
	}
	if b := fixedpoint.Fee(amount, p.pctB); b.Sign() > 0 {
		due = append(due, TaxDue{Collector: p.collectorB, Amount: b})
	}
	return due
}

// UpdateVip marks or clears addr as a VIP sender. Admin only.
func (p *VanillaShareTax) UpdateVip(caller, addr fund.Address, vip bool) error {
	if err := p.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if vip {
		p.vip[addr] = true
	} else {
		delete(p.vip, addr)
	}
	return nil
}

// UpdateExempt marks or clears addr as tax-exempt on both sides. Admin only.
func (p *VanillaShareTax) UpdateExempt(caller, addr fund.Address, exempt bool) error {
	if err := p.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if exempt {
		p.exempt[addr] = true
	} else {
		delete(p.exempt, addr)
	}
	return nil
}
