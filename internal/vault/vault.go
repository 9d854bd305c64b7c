// Package vault implements the asynchronous fund pipeline. A vault custodies
// the settlement asset on its own token balance, owns the share token, and is
// the only writer of its pending and claim sub-ledgers. Deposits settle
// Requested -> Completed | Refunded; withdrawals settle Requested ->
// Processed -> Completed | Refunded. All share/asset conversion happens at
// batch time against an operator-supplied net asset value.
package vault

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/audit"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/ledger"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/internal/token"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
	"github.com/terminal-bench/fundvault/pkg/messaging"
)

// Entry names one user settlement inside a batch. Duplicate users are legal;
// their entries settle additively against the user's staged balance.
type Entry struct {
	User   fund.Address
	Amount decimal.Decimal
}

// Config wires a vault together. Address must be the owner of the share
// token so the vault can drive mints and burns.
type Config struct {
	Address fund.Address
	Roles   *roles.Registry
	Asset   *token.Service
	Shares  *token.Service

	OnboardingFeePct    decimal.Decimal
	WithdrawalFeePct    decimal.Decimal
	OnboardingCollector fund.Address
	WithdrawalCollector fund.Address
	Delegate            fund.Address
	Competition         fund.Address

	Compliance policy.CompliancePolicy
	Bus        messaging.Publisher
}

// Vault owns the four ledgers of one fund.
type Vault struct {
	addr   fund.Address
	roles  *roles.Registry
	asset  *token.Service
	shares *token.Service

	pendingDeposit  *ledger.RequestBook
	pendingWithdraw *ledger.RequestBook
	claims          *ledger.ClaimBook

	mu                  sync.RWMutex
	onboardingFeePct    decimal.Decimal
	withdrawalFeePct    decimal.Decimal
	onboardingCollector fund.Address
	withdrawalCollector fund.Address
	delegate            fund.Address
	competition         fund.Address
	compliance          policy.CompliancePolicy
	sink                audit.ProcessedSink
	netSettledOut       decimal.Decimal

	bus messaging.Publisher
}

// New creates a vault from cfg.
func New(cfg Config) (*Vault, error) {
	if cfg.Address.IsZero() {
		return nil, fund.ErrZeroAddress
	}
	if cfg.Roles == nil || cfg.Asset == nil || cfg.Shares == nil {
		return nil, fund.ErrZeroAddress
	}
	compliance := cfg.Compliance
	if compliance == nil {
		compliance = policy.AllowAll{}
	}
	v := &Vault{
		addr:                cfg.Address,
		roles:               cfg.Roles,
		asset:               cfg.Asset,
		shares:              cfg.Shares,
		pendingDeposit:      ledger.NewRequestBook(cfg.Roles),
		pendingWithdraw:     ledger.NewRequestBook(cfg.Roles),
		claims:              ledger.NewClaimBook(),
		onboardingFeePct:    cfg.OnboardingFeePct,
		withdrawalFeePct:    cfg.WithdrawalFeePct,
		onboardingCollector: cfg.OnboardingCollector,
		withdrawalCollector: cfg.WithdrawalCollector,
		delegate:            cfg.Delegate,
		competition:         cfg.Competition,
		compliance:          compliance,
		netSettledOut:       decimal.Zero,
		bus:                 cfg.Bus,
	}
	return v, nil
}

// Address returns the vault's custody address.
func (v *Vault) Address() fund.Address { return v.addr }

// DepositBook exposes the pending-deposit ledger for admission tuning and
// balance reads. Mutation stays vault-internal.
func (v *Vault) DepositBook() *ledger.RequestBook { return v.pendingDeposit }

// WithdrawBook exposes the pending-withdrawal ledger.
func (v *Vault) WithdrawBook() *ledger.RequestBook { return v.pendingWithdraw }

// requireAdmin gates configuration changes. The competition address has no
// say here.
func (v *Vault) requireAdmin(caller fund.Address) error {
	return v.roles.RequireAdmin(caller)
}

// requireOperator gates pipeline operations: admins, or the configured
// competition address acting as alternate authority.
func (v *Vault) requireOperator(caller fund.Address) error {
	v.mu.RLock()
	competition := v.competition
	v.mu.RUnlock()
	if !competition.IsZero() && caller == competition {
		return nil
	}
	return v.roles.RequireAdmin(caller)
}

func (v *Vault) allowed(addr fund.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.compliance.IsAllowed(addr)
}

// DepositRequest pulls amount of the settlement asset from sender into
// custody and stages it as a pending deposit for receiver. The sender must
// have granted the vault an allowance over the asset.
func (v *Vault) DepositRequest(ctx context.Context, sender fund.Address, amount decimal.Decimal, receiver fund.Address) error {
	if sender.IsZero() || receiver.IsZero() {
		return fund.ErrZeroAddress
	}
	if !v.allowed(sender) || !v.allowed(receiver) {
		return fund.ErrForbidden
	}

	// Admission and the stake mint must be one step, or two concurrent
	// requests could each clear the caps and overshoot them together.
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.pendingDeposit.Admit(receiver, amount, fund.LimitDeposit); err != nil {
		return err
	}
	if err := v.asset.TransferFrom(ctx, v.addr, sender, v.addr, amount); err != nil {
		return err
	}
	if err := v.pendingDeposit.Mint(receiver, amount); err != nil {
		return err
	}
	v.emit(ctx, messaging.EventTypeDepositRequested, messaging.RequestEvent{
		Vault:    string(v.addr),
		Sender:   string(sender),
		Receiver: string(receiver),
		Amount:   amount.String(),
	})
	return nil
}

// RefundSingleDeposit unwinds amount of user's pending deposit, returning
// the asset from custody. Partial refunds are fine.
func (v *Vault) RefundSingleDeposit(ctx context.Context, caller fund.Address, amount decimal.Decimal, user fund.Address) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pendingDeposit.Burn(user, amount); err != nil {
		return err
	}
	if err := v.asset.Transfer(ctx, v.addr, user, amount); err != nil {
		// Restage: custody could not pay out, the request must survive.
		v.pendingDeposit.Mint(user, amount)
		return err
	}
	v.emit(ctx, messaging.EventTypeDepositRefunded, messaging.RequestEvent{
		Vault:    string(v.addr),
		Sender:   string(user),
		Receiver: string(user),
		Amount:   amount.String(),
	})
	return nil
}

// CompleteDeposits settles a batch of pending deposits at nav, minting
// shares net of the onboarding fee. The batch is atomic: any invalid entry
// aborts the whole call before anything moves.
func (v *Vault) CompleteDeposits(ctx context.Context, caller fund.Address, nav decimal.Decimal, entries []Entry) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	if !fixedpoint.IsValidAmount(nav) {
		return fund.ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := make(map[fund.Address]decimal.Decimal)
	totalFee := decimal.Zero
	for _, e := range entries {
		if !fixedpoint.IsValidAmount(e.Amount) {
			return fund.ErrZeroAmount
		}
		if !v.compliance.IsAllowed(e.User) {
			return fund.ErrForbidden
		}
		sum := staged[e.User].Add(e.Amount)
		if sum.GreaterThan(v.pendingDeposit.BalanceOf(e.User)) {
			return fund.ErrAmountMismatch
		}
		staged[e.User] = sum
		totalFee = totalFee.Add(fixedpoint.Fee(e.Amount, v.onboardingFeePct))
	}
	if totalFee.GreaterThan(v.asset.BalanceOf(v.addr)) {
		return fund.ErrInsufficientBalance
	}

	for _, e := range entries {
		fee := fixedpoint.Fee(e.Amount, v.onboardingFeePct)
		net := e.Amount.Sub(fee)
		sharesOut := fixedpoint.SharesFromAssets(net, nav)

		if err := v.pendingDeposit.Burn(e.User, e.Amount); err != nil {
			return err
		}
		if sharesOut.Sign() > 0 {
			if err := v.shares.Mint(ctx, v.addr, e.User, sharesOut); err != nil {
				return err
			}
		}
		v.record(audit.ProcessedRecord{
			Vault:     v.addr,
			Type:      fund.RequestDeposit,
			Receiver:  e.User,
			AmountIn:  net,
			AmountOut: sharesOut,
			FeesPaid:  fee,
		})
		v.emit(ctx, messaging.EventTypeDepositCompleted, messaging.SettledEvent{
			Vault:     string(v.addr),
			Receiver:  string(e.User),
			AmountIn:  net.String(),
			AmountOut: sharesOut.String(),
			FeesPaid:  fee.String(),
			Nav:       nav.String(),
		})
	}
	if totalFee.Sign() > 0 {
		if err := v.asset.Transfer(ctx, v.addr, v.onboardingCollector, totalFee); err != nil {
			return err
		}
	}
	return nil
}

// WithdrawRequest moves amount of sender's shares into the vault's own
// balance and stages a pending withdrawal for receiver. Share supply is
// unchanged; the vault shows up in the holder registry like anyone else.
func (v *Vault) WithdrawRequest(ctx context.Context, sender fund.Address, amount decimal.Decimal, receiver fund.Address) error {
	if sender.IsZero() || receiver.IsZero() {
		return fund.ErrZeroAddress
	}
	if !v.allowed(sender) || !v.allowed(receiver) {
		return fund.ErrForbidden
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.pendingWithdraw.Admit(receiver, amount, fund.LimitRedeem); err != nil {
		return err
	}
	if err := v.shares.TransferFrom(ctx, v.addr, sender, v.addr, amount); err != nil {
		return err
	}
	if err := v.pendingWithdraw.Mint(receiver, amount); err != nil {
		return err
	}
	v.emit(ctx, messaging.EventTypeWithdrawRequested, messaging.RequestEvent{
		Vault:    string(v.addr),
		Sender:   string(sender),
		Receiver: string(receiver),
		Amount:   amount.String(),
	})
	return nil
}

// RefundSingleWithdrawal hands amount of staged shares back to user.
func (v *Vault) RefundSingleWithdrawal(ctx context.Context, caller fund.Address, amount decimal.Decimal, user fund.Address) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.pendingWithdraw.Burn(user, amount); err != nil {
		return err
	}
	if err := v.shares.Move(ctx, v.addr, v.addr, user, amount); err != nil {
		v.pendingWithdraw.Mint(user, amount)
		return err
	}
	v.emit(ctx, messaging.EventTypeWithdrawRefunded, messaging.RequestEvent{
		Vault:    string(v.addr),
		Sender:   string(user),
		Receiver: string(user),
		Amount:   amount.String(),
	})
	return nil
}

// ProcessWithdrawals burns staged shares at nav and mints settlement claims.
// The withdrawal fee is computed here for the audit trail but only deducted
// at completion. Atomic like CompleteDeposits.
func (v *Vault) ProcessWithdrawals(ctx context.Context, caller fund.Address, nav decimal.Decimal, entries []Entry) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	if !fixedpoint.IsValidAmount(nav) {
		return fund.ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := make(map[fund.Address]decimal.Decimal)
	for _, e := range entries {
		if !fixedpoint.IsValidAmount(e.Amount) {
			return fund.ErrZeroAmount
		}
		if !v.compliance.IsAllowed(e.User) {
			return fund.ErrForbidden
		}
		sum := staged[e.User].Add(e.Amount)
		if sum.GreaterThan(v.pendingWithdraw.BalanceOf(e.User)) {
			return fund.ErrAmountMismatch
		}
		staged[e.User] = sum
	}

	for _, e := range entries {
		assetsOut := fixedpoint.AssetsFromShares(e.Amount, nav)
		fee := fixedpoint.Fee(assetsOut, v.withdrawalFeePct)

		if err := v.pendingWithdraw.Burn(e.User, e.Amount); err != nil {
			return err
		}
		if err := v.shares.Burn(ctx, v.addr, v.addr, e.Amount); err != nil {
			return err
		}
		if assetsOut.Sign() > 0 {
			if err := v.claims.Mint(e.User, assetsOut); err != nil {
				return err
			}
		}
		v.record(audit.ProcessedRecord{
			Vault:     v.addr,
			Type:      fund.RequestWithdraw,
			Receiver:  e.User,
			AmountIn:  e.Amount,
			AmountOut: assetsOut.Sub(fee),
			FeesPaid:  fee,
		})
		v.emit(ctx, messaging.EventTypeWithdrawProcessed, messaging.SettledEvent{
			Vault:     string(v.addr),
			Receiver:  string(e.User),
			AmountIn:  e.Amount.String(),
			AmountOut: assetsOut.Sub(fee).String(),
			FeesPaid:  fee.String(),
			Nav:       nav.String(),
		})
	}
	return nil
}

// CompleteWithdrawals burns settlement claims and pays the asset out of
// custody net of the withdrawal fee. Fails whole if custody cannot cover the
// batch. No audit record is written at this phase.
func (v *Vault) CompleteWithdrawals(ctx context.Context, caller fund.Address, entries []Entry) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	staged := make(map[fund.Address]decimal.Decimal)
	totalOut := decimal.Zero
	for _, e := range entries {
		if !fixedpoint.IsValidAmount(e.Amount) {
			return fund.ErrZeroAmount
		}
		if !v.compliance.IsAllowed(e.User) {
			return fund.ErrForbidden
		}
		sum := staged[e.User].Add(e.Amount)
		if sum.GreaterThan(v.claims.BalanceOf(e.User)) {
			return fund.ErrAmountMismatch
		}
		staged[e.User] = sum
		totalOut = totalOut.Add(e.Amount)
	}
	if totalOut.GreaterThan(v.asset.BalanceOf(v.addr)) {
		return fund.ErrInsufficientBalance
	}

	totalFee := decimal.Zero
	for _, e := range entries {
		fee := fixedpoint.Fee(e.Amount, v.withdrawalFeePct)
		payout := e.Amount.Sub(fee)

		if err := v.claims.Burn(e.User, e.Amount); err != nil {
			return err
		}
		if payout.Sign() > 0 {
			if err := v.asset.Transfer(ctx, v.addr, e.User, payout); err != nil {
				return err
			}
		}
		totalFee = totalFee.Add(fee)
		v.emit(ctx, messaging.EventTypeWithdrawCompleted, messaging.SettledEvent{
			Vault:     string(v.addr),
			Receiver:  string(e.User),
			AmountIn:  e.Amount.String(),
			AmountOut: payout.String(),
			FeesPaid:  fee.String(),
		})
	}
	if totalFee.Sign() > 0 {
		if err := v.asset.Transfer(ctx, v.addr, v.withdrawalCollector, totalFee); err != nil {
			return err
		}
	}
	return nil
}

// SettlementOut hands amount of custody to the delegate for off-platform
// deployment.
func (v *Vault) SettlementOut(ctx context.Context, caller fund.Address, amount decimal.Decimal) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.asset.Transfer(ctx, v.addr, v.delegate, amount); err != nil {
		return err
	}
	v.netSettledOut = v.netSettledOut.Add(amount)
	v.emit(ctx, messaging.EventTypeSettlementOut, messaging.SettlementEvent{
		Vault:    string(v.addr),
		Delegate: string(v.delegate),
		Amount:   amount.String(),
	})
	return nil
}

// SettlementIn pulls amount back from the delegate. The delegate must have
// granted the vault an asset allowance.
func (v *Vault) SettlementIn(ctx context.Context, caller fund.Address, amount decimal.Decimal) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.asset.TransferFrom(ctx, v.addr, v.delegate, v.addr, amount); err != nil {
		return err
	}
	v.netSettledOut = v.netSettledOut.Sub(amount)
	v.emit(ctx, messaging.EventTypeSettlementIn, messaging.SettlementEvent{
		Vault:    string(v.addr),
		Delegate: string(v.delegate),
		Amount:   amount.String(),
	})
	return nil
}

// NetSettledOut is the cumulative custody handed to the delegate and not yet
// returned. A reconciliation counter, not an enforced invariant.
func (v *Vault) NetSettledOut() decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.netSettledOut
}

// ManualMint issues shares outside the deposit pipeline. No fee, no levy.
func (v *Vault) ManualMint(ctx context.Context, caller, receiver fund.Address, amount decimal.Decimal) error {
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	if !v.allowed(receiver) {
		return fund.ErrForbidden
	}
	if err := v.shares.Mint(ctx, v.addr, receiver, amount); err != nil {
		return err
	}
	v.emit(ctx, messaging.EventTypeManualMint, messaging.TransferEvent{
		Token:  v.shares.Name(),
		From:   string(fund.ZeroAddress),
		To:     string(receiver),
		Amount: amount.String(),
	})
	return nil
}

func (v *Vault) record(rec audit.ProcessedRecord) {
	if v.sink != nil {
		v.sink.AppendProcessed(rec)
	}
}

func (v *Vault) emit(ctx context.Context, eventType string, data interface{}) {
	_ = messaging.Emit(ctx, v.bus, eventType, string(v.addr), data)
}
