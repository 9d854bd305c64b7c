package vault

import (
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// Read views. Conversions at the vault surface are identities over the
// request books; real share pricing only ever happens at batch settlement.

// CustodyBalance is the settlement asset currently held by the vault.
func (v *Vault) CustodyBalance() decimal.Decimal {
	return v.asset.BalanceOf(v.addr)
}

// PendingDepositOf is user's staged deposit in asset units.
func (v *Vault) PendingDepositOf(user fund.Address) decimal.Decimal {
	return v.pendingDeposit.BalanceOf(user)
}

// PendingWithdrawOf is user's staged withdrawal in share units.
func (v *Vault) PendingWithdrawOf(user fund.Address) decimal.Decimal {
	return v.pendingWithdraw.BalanceOf(user)
}

// ClaimOf is user's settled but unpaid claim in asset units.
func (v *Vault) ClaimOf(user fund.Address) decimal.Decimal {
	return v.claims.BalanceOf(user)
}

// ConvertToShares converts staged assets one-to-one.
func (v *Vault) ConvertToShares(assets decimal.Decimal) decimal.Decimal {
	return v.pendingDeposit.ConvertToShares(assets)
}

// ConvertToAssets converts staged shares one-to-one.
func (v *Vault) ConvertToAssets(shares decimal.Decimal) decimal.Decimal {
	return v.pendingDeposit.ConvertToAssets(shares)
}

// PreviewDeposit reports the pending units staged for a deposit of assets.
func (v *Vault) PreviewDeposit(assets decimal.Decimal) decimal.Decimal {
	return v.pendingDeposit.PreviewDeposit(assets)
}

// PreviewMint reports the assets needed to stage shares pending units.
func (v *Vault) PreviewMint(shares decimal.Decimal) decimal.Decimal {
	return v.pendingDeposit.PreviewMint(shares)
}

// PreviewRedeem is always zero; redemptions settle asynchronously.
func (v *Vault) PreviewRedeem(shares decimal.Decimal) decimal.Decimal {
	return v.pendingWithdraw.PreviewRedeem(shares)
}

// PreviewWithdraw fails for any positive amount; synchronous withdrawal by
// asset amount is unsupported.
func (v *Vault) PreviewWithdraw(assets decimal.Decimal) (decimal.Decimal, error) {
	return v.pendingWithdraw.PreviewWithdraw(assets)
}

// MaxDeposit is user's live deposit quota.
func (v *Vault) MaxDeposit(user fund.Address) decimal.Decimal {
	return v.pendingDeposit.MaxFor(user, fund.LimitDeposit)
}

// MaxMint is user's live mint quota.
func (v *Vault) MaxMint(user fund.Address) decimal.Decimal {
	return v.pendingDeposit.MaxFor(user, fund.LimitMint)
}

// MaxWithdraw is always zero.
func (v *Vault) MaxWithdraw(user fund.Address) decimal.Decimal {
	return decimal.Zero
}

// MaxRedeem is the tighter of user's redemption quota and share balance.
func (v *Vault) MaxRedeem(user fund.Address) decimal.Decimal {
	return fixedpoint.Min(v.pendingWithdraw.MaxFor(user, fund.LimitRedeem), v.shares.BalanceOf(user))
}

// ShareHolderCount counts addresses holding shares, the vault included when
// withdrawal requests are staged.
func (v *Vault) ShareHolderCount() int {
	return v.shares.HolderCount()
}

// ShareHoldersInRange pages through share holders in insertion order.
func (v *Vault) ShareHoldersInRange(start, count int) ([]fund.Address, error) {
	return v.shares.HoldersInRange(start, count)
}
