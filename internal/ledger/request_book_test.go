package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

const admin = fund.Address("admin")

func newRequestBook(t *testing.T) *RequestBook {
	t.Helper()
	return NewRequestBook(roles.NewRegistry(admin))
}

func TestAdmission(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.UpdateMinimum(admin, amt(1000)))
		assert.ErrorIs(t, rb.Admit(alice, amt(999), fund.LimitDeposit), fund.ErrBelowMinimum)
		assert.NoError(t, rb.Admit(alice, amt(1000), fund.LimitDeposit))
	})

	t.Run("suspension zeroes the quota", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.ToggleSuspendSubscription(admin))
		assert.ErrorIs(t, rb.Admit(alice, amt(1), fund.LimitDeposit), fund.ErrSuspended)
		assert.ErrorIs(t, rb.Admit(alice, amt(1), fund.LimitMint), fund.ErrSuspended)
		assert.NoError(t, rb.Admit(alice, amt(1), fund.LimitRedeem))
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).IsZero())

		require.NoError(t, rb.ToggleSuspendSubscription(admin))
		assert.NoError(t, rb.Admit(alice, amt(1), fund.LimitDeposit))
	})

	t.Run("global cap counts hypothetical supply", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.UpdateGlobalMax(admin, fund.LimitDeposit, amt(100)))
		require.NoError(t, rb.Mint(alice, amt(60)))
		assert.NoError(t, rb.Admit(bob, amt(40), fund.LimitDeposit))
		assert.ErrorIs(t, rb.Admit(bob, amt(41), fund.LimitDeposit), fund.ErrExceedsGlobalMax)
	})

	t.Run("individual cap counts hypothetical balance", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.UpdateIndividualMax(admin, fund.LimitDeposit, alice, amt(50)))
		require.NoError(t, rb.Mint(alice, amt(30)))
		assert.NoError(t, rb.Admit(alice, amt(20), fund.LimitDeposit))
		assert.ErrorIs(t, rb.Admit(alice, amt(21), fund.LimitDeposit), fund.ErrExceedsIndividualMax)
		// other users keep the default unbounded cap
		assert.NoError(t, rb.Admit(bob, amt(1_000_000), fund.LimitDeposit))
	})
}

func TestMaxFor(t *testing.T) {
	t.Run("unset caps report the max sentinel", func(t *testing.T) {
		rb := newRequestBook(t)
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).Equal(fixedpoint.MaxUint))
	})

	t.Run("reports live remaining quota", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.UpdateGlobalMax(admin, fund.LimitDeposit, amt(3_000_000_000)))
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).Equal(amt(3_000_000_000)))

		require.NoError(t, rb.UpdateIndividualMax(admin, fund.LimitDeposit, alice, amt(100_000_000)))
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).Equal(amt(100_000_000)))

		require.NoError(t, rb.Mint(alice, amt(30_000_000)))
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).Equal(amt(70_000_000)))
	})

	t.Run("never negative", func(t *testing.T) {
		rb := newRequestBook(t)
		require.NoError(t, rb.Mint(alice, amt(100)))
		require.NoError(t, rb.UpdateGlobalMax(admin, fund.LimitDeposit, amt(50)))
		assert.True(t, rb.MaxFor(alice, fund.LimitDeposit).IsZero())
	})
}

func TestParameterRoleGating(t *testing.T) {
	reg := roles.NewRegistry(admin)
	inflow := fund.Address("inflow-mgr")
	outflow := fund.Address("outflow-mgr")
	require.NoError(t, reg.Grant(admin, inflow, roles.InflowManager))
	require.NoError(t, reg.Grant(admin, outflow, roles.OutflowManager))
	rb := NewRequestBook(reg)

	assert.ErrorIs(t, rb.UpdateMinimum(alice, amt(1)), fund.ErrUnauthorized)
	assert.ErrorIs(t, rb.UpdateGlobalMax(alice, fund.LimitDeposit, amt(1)), fund.ErrUnauthorized)

	// inflow manager controls subscription kinds only
	assert.NoError(t, rb.UpdateGlobalMax(inflow, fund.LimitDeposit, amt(10)))
	assert.NoError(t, rb.UpdateGlobalMax(inflow, fund.LimitMint, amt(10)))
	assert.ErrorIs(t, rb.UpdateGlobalMax(inflow, fund.LimitRedeem, amt(10)), fund.ErrUnauthorized)

	// outflow manager controls redemption kinds only
	assert.NoError(t, rb.UpdateIndividualMax(outflow, fund.LimitRedeem, alice, amt(10)))
	assert.ErrorIs(t, rb.UpdateIndividualMax(outflow, fund.LimitDeposit, alice, amt(10)), fund.ErrUnauthorized)

	assert.ErrorIs(t, rb.ToggleSuspendSubscription(outflow), fund.ErrUnauthorized)
	assert.NoError(t, rb.ToggleSuspendSubscription(inflow))
	assert.ErrorIs(t, rb.ToggleSuspendRedemption(inflow), fund.ErrUnauthorized)
	assert.NoError(t, rb.ToggleSuspendRedemption(outflow))
}

func TestRequestBookViews(t *testing.T) {
	rb := newRequestBook(t)
	assets := amt(123_456)
	assert.True(t, rb.ConvertToShares(assets).Equal(assets))
	assert.True(t, rb.ConvertToAssets(assets).Equal(assets))
	assert.True(t, rb.PreviewDeposit(assets).Equal(assets))
	assert.True(t, rb.PreviewMint(assets).Equal(assets))
	assert.True(t, rb.PreviewRedeem(assets).IsZero())

	_, err := rb.PreviewWithdraw(assets)
	assert.ErrorIs(t, err, fund.ErrInsufficientBalance)
	zero, err := rb.PreviewWithdraw(decimal.Zero)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
