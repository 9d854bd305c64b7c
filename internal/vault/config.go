package vault

import (
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/audit"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// Configuration updates are admin-only. The competition address carries no
// authority here, only over pipeline operations.

func validPct(pct decimal.Decimal) bool {
	return pct.Sign() >= 0 && pct.Equal(pct.Floor()) && !pct.GreaterThan(fixedpoint.SingleUnit)
}

// UpdateOnboardingFee sets the deposit-side fee in parts per SingleUnit.
func (v *Vault) UpdateOnboardingFee(caller fund.Address, pct decimal.Decimal) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if !validPct(pct) {
		return fund.ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onboardingFeePct = pct
	return nil
}

// UpdateWithdrawalFee sets the withdrawal-side fee in parts per SingleUnit.
func (v *Vault) UpdateWithdrawalFee(caller fund.Address, pct decimal.Decimal) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if !validPct(pct) {
		return fund.ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.withdrawalFeePct = pct
	return nil
}

// UpdateOnboardingCollector redirects deposit fees.
func (v *Vault) UpdateOnboardingCollector(caller, collector fund.Address) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if collector.IsZero() {
		return fund.ErrZeroAddress
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onboardingCollector = collector
	return nil
}

// UpdateWithdrawalCollector redirects withdrawal fees.
func (v *Vault) UpdateWithdrawalCollector(caller, collector fund.Address) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if collector.IsZero() {
		return fund.ErrZeroAddress
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.withdrawalCollector = collector
	return nil
}

// UpdateDelegate changes the settlement counterparty.
func (v *Vault) UpdateDelegate(caller, delegate fund.Address) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if delegate.IsZero() {
		return fund.ErrZeroAddress
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delegate = delegate
	return nil
}

// UpdateCompetition changes the alternate pipeline authority.
func (v *Vault) UpdateCompetition(caller, competition fund.Address) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if competition.IsZero() {
		return fund.ErrZeroAddress
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.competition = competition
	return nil
}

// UpdateCompliance swaps the vault-level compliance policy.
func (v *Vault) UpdateCompliance(caller fund.Address, p policy.CompliancePolicy) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	if p == nil {
		return fund.ErrZeroAddress
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.compliance = p
	return nil
}

// UpdateShareTax swaps the share token's levy policy. The vault owns the
// share token, so the swap is forwarded under its own authority.
func (v *Vault) UpdateShareTax(caller fund.Address, p policy.ShareTaxPolicy) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	return v.shares.UpdateShareTax(v.addr, p)
}

// UpdateRouter wires the audit sink processed records are written to.
func (v *Vault) UpdateRouter(caller fund.Address, sink audit.ProcessedSink) error {
	if err := v.requireAdmin(caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sink = sink
	return nil
}
