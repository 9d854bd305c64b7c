package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

// RequestBook is a Book with admission control, used for pending deposits
// (settlement-asset units) and pending withdrawals (share units). Requests of
// the same user coalesce by addition; there are no per-request records.
type RequestBook struct {
	*Book

	roles *roles.Registry

	pmu           sync.RWMutex
	minimum       decimal.Decimal
	globalMax     map[fund.LimitKind]decimal.Decimal
	individualMax map[fund.LimitKind]map[fund.Address]decimal.Decimal
	suspendedSub  bool
	suspendedRed  bool
}

// NewRequestBook creates a request book with unbounded caps and a zero
// minimum. Parameter updates are gated through reg.
func NewRequestBook(reg *roles.Registry) *RequestBook {
	rb := &RequestBook{
		Book:          NewBook(),
		roles:         reg,
		minimum:       decimal.Zero,
		globalMax:     make(map[fund.LimitKind]decimal.Decimal),
		individualMax: make(map[fund.LimitKind]map[fund.Address]decimal.Decimal),
	}
	for _, k := range []fund.LimitKind{fund.LimitDeposit, fund.LimitMint, fund.LimitWithdraw, fund.LimitRedeem} {
		rb.globalMax[k] = fixedpoint.MaxUint
		rb.individualMax[k] = make(map[fund.Address]decimal.Decimal)
	}
	return rb
}

func (rb *RequestBook) suspended(kind fund.LimitKind) bool {
	if kind.Inflow() {
		return rb.suspendedSub
	}
	return rb.suspendedRed
}

func (rb *RequestBook) individualCap(user fund.Address, kind fund.LimitKind) decimal.Decimal {
	if cap, ok := rb.individualMax[kind][user]; ok {
		return cap
	}
	return fixedpoint.MaxUint
}

// Admit decides whether a hypothetical mint of amount for user passes the
// admission rules for kind. It mutates nothing.
func (rb *RequestBook) Admit(user fund.Address, amount decimal.Decimal, kind fund.LimitKind) error {
	if !fixedpoint.IsValidAmount(amount) {
		return fund.ErrZeroAmount
	}
	rb.pmu.RLock()
	defer rb.pmu.RUnlock()
	if rb.suspended(kind) {
		return fund.ErrSuspended
	}
	if amount.LessThan(rb.minimum) {
		return fund.ErrBelowMinimum
	}
	if rb.TotalSupply().Add(amount).GreaterThan(rb.globalMax[kind]) {
		return fund.ErrExceedsGlobalMax
	}
	if rb.BalanceOf(user).Add(amount).GreaterThan(rb.individualCap(user, kind)) {
		return fund.ErrExceedsIndividualMax
	}
	return nil
}

// MaxFor reports the remaining admissible amount for user under kind: the
// tighter of the unspent global and individual headroom, zero while the kind
// is suspended. Callers must treat it as a live quota, not an absolute cap.
func (rb *RequestBook) MaxFor(user fund.Address, kind fund.LimitKind) decimal.Decimal {
	rb.pmu.RLock()
	defer rb.pmu.RUnlock()
	if rb.suspended(kind) {
		return decimal.Zero
	}
	global := rb.globalMax[kind].Sub(rb.TotalSupply())
	individual := rb.individualCap(user, kind).Sub(rb.BalanceOf(user))
	remaining := fixedpoint.Min(global, individual)
	if remaining.Sign() < 0 {
		return decimal.Zero
	}
	return remaining
}

// Minimum returns the minimum admissible request amount.
func (rb *RequestBook) Minimum() decimal.Decimal {
	rb.pmu.RLock()
	defer rb.pmu.RUnlock()
	return rb.minimum
}

// UpdateMinimum sets the minimum request amount. Admin only.
func (rb *RequestBook) UpdateMinimum(caller fund.Address, min decimal.Decimal) error {
	if err := rb.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if min.Sign() < 0 {
		return fund.ErrZeroAmount
	}
	rb.pmu.Lock()
	defer rb.pmu.Unlock()
	rb.minimum = min
	return nil
}

func (rb *RequestBook) requireManager(caller fund.Address, kind fund.LimitKind) error {
	if kind.Inflow() {
		return rb.roles.RequireAny(caller, roles.Admin, roles.InflowManager)
	}
	return rb.roles.RequireAny(caller, roles.Admin, roles.OutflowManager)
}

// UpdateGlobalMax sets the global cap for kind.
func (rb *RequestBook) UpdateGlobalMax(caller fund.Address, kind fund.LimitKind, value decimal.Decimal) error {
	if err := rb.requireManager(caller, kind); err != nil {
		return err
	}
	rb.pmu.Lock()
	defer rb.pmu.Unlock()
	rb.globalMax[kind] = value
	return nil
}

// UpdateIndividualMax sets the per-user cap for kind.
func (rb *RequestBook) UpdateIndividualMax(caller fund.Address, kind fund.LimitKind, user fund.Address, value decimal.Decimal) error {
	if user.IsZero() {
		return fund.ErrZeroAddress
	}
	if err := rb.requireManager(caller, kind); err != nil {
		return err
	}
	rb.pmu.Lock()
	defer rb.pmu.Unlock()
	rb.individualMax[kind][user] = value
	return nil
}

// ToggleSuspendSubscription flips admission for the deposit and mint kinds.
func (rb *RequestBook) ToggleSuspendSubscription(caller fund.Address) error {
	if err := rb.roles.RequireAny(caller, roles.Admin, roles.InflowManager); err != nil {
		return err
	}
	rb.pmu.Lock()
	defer rb.pmu.Unlock()
	rb.suspendedSub = !rb.suspendedSub
	return nil
}

// ToggleSuspendRedemption flips admission for the withdraw and redeem kinds.
func (rb *RequestBook) ToggleSuspendRedemption(caller fund.Address) error {
	if err := rb.roles.RequireAny(caller, roles.Admin, roles.OutflowManager); err != nil {
		return err
	}
	rb.pmu.Lock()
	defer rb.pmu.Unlock()
	rb.suspendedRed = !rb.suspendedRed
	return nil
}

// The request book converts one-to-one: a pending unit is minted per unit of
// value submitted, so the ERC4626-style views collapse to identities.

// ConvertToShares returns assets unchanged.
func (rb *RequestBook) ConvertToShares(assets decimal.Decimal) decimal.Decimal {
	return assets
}

// ConvertToAssets returns shares unchanged.
func (rb *RequestBook) ConvertToAssets(shares decimal.Decimal) decimal.Decimal {
	return shares
}

// PreviewDeposit returns the pending units minted for assets.
func (rb *RequestBook) PreviewDeposit(assets decimal.Decimal) decimal.Decimal {
	return assets
}

// PreviewMint returns the assets required to mint shares pending units.
func (rb *RequestBook) PreviewMint(shares decimal.Decimal) decimal.Decimal {
	return shares
}

// PreviewRedeem returns the assets paid for redeeming pending units: always
// zero, since submitted value is pulled onward by the vault and never rests
// here.
func (rb *RequestBook) PreviewRedeem(shares decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// PreviewWithdraw fails for any positive amount: no assets can be withdrawn
// from the request book.
func (rb *RequestBook) PreviewWithdraw(assets decimal.Decimal) (decimal.Decimal, error) {
	if assets.Sign() > 0 {
		return decimal.Zero, fund.ErrInsufficientBalance
	}
	return decimal.Zero, nil
}

// ClaimBook tracks settled value owed but not yet paid out. It has the same
// balance and holder-registry shape as a request book but no admission
// control.
type ClaimBook struct {
	*Book
}

// NewClaimBook creates an empty claim book.
func NewClaimBook() *ClaimBook {
	return &ClaimBook{Book: NewBook()}
}
