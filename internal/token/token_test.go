package token

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/policy"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/pkg/fixedpoint"
)

const (
	admin = fund.Address("admin")
	vault = fund.Address("vault")
	alice = fund.Address("alice")
	bob   = fund.Address("bob")
	carol = fund.Address("carol")
)

func amt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func seeded(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s := NewService("USDC", vault, opts...)
	require.NoError(t, s.Mint(context.Background(), vault, alice, amt(1_000_000)))
	return s
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves balance", func(t *testing.T) {
		s := seeded(t)
		require.NoError(t, s.Transfer(ctx, alice, bob, amt(400_000)))
		assert.True(t, s.BalanceOf(alice).Equal(amt(600_000)))
		assert.True(t, s.BalanceOf(bob).Equal(amt(400_000)))
		assert.True(t, s.TotalSupply().Equal(amt(1_000_000)))
	})

	t.Run("rejects zero amount and zero address", func(t *testing.T) {
		s := seeded(t)
		assert.ErrorIs(t, s.Transfer(ctx, alice, bob, decimal.Zero), fund.ErrZeroAmount)
		assert.ErrorIs(t, s.Transfer(ctx, alice, fund.ZeroAddress, amt(1)), fund.ErrZeroAddress)
	})

	t.Run("insufficient balance leaves state unchanged", func(t *testing.T) {
		s := seeded(t)
		assert.ErrorIs(t, s.Transfer(ctx, alice, bob, amt(1_000_001)), fund.ErrInsufficientBalance)
		assert.True(t, s.BalanceOf(alice).Equal(amt(1_000_000)))
		assert.True(t, s.BalanceOf(bob).IsZero())
	})

	t.Run("blocked counterparty is forbidden", func(t *testing.T) {
		blacklist := policy.NewManualBlacklist(roles.NewRegistry(admin))
		s := seeded(t, WithCompliance(blacklist))
		require.NoError(t, blacklist.UpdateBanned(admin, bob, true))

		assert.ErrorIs(t, s.Transfer(ctx, alice, bob, amt(100)), fund.ErrForbidden)
		assert.ErrorIs(t, s.Transfer(ctx, bob, alice, amt(100)), fund.ErrForbidden)
	})
}

func TestShareTaxLevy(t *testing.T) {
	ctx := context.Background()
	reg := roles.NewRegistry(admin)
	// 1% and 0.5%
	tax, err := policy.NewVanillaShareTax(reg, bob, carol, amt(10_000), amt(5_000))
	require.NoError(t, err)

	t.Run("sender pays levy on top", func(t *testing.T) {
		s := seeded(t, WithShareTax(tax))
		require.NoError(t, s.Transfer(ctx, alice, fund.Address("dave"), amt(100_000)))
		assert.True(t, s.BalanceOf(alice).Equal(amt(898_500)), "balance %s", s.BalanceOf(alice))
		assert.True(t, s.BalanceOf("dave").Equal(amt(100_000)))
		assert.True(t, s.BalanceOf(bob).Equal(amt(1_000)))
		assert.True(t, s.BalanceOf(carol).Equal(amt(500)))
	})

	t.Run("fails whole transfer when sender cannot cover the levy", func(t *testing.T) {
		s := seeded(t, WithShareTax(tax))
		assert.ErrorIs(t, s.Transfer(ctx, alice, fund.Address("dave"), amt(1_000_000)), fund.ErrInsufficientBalance)
		assert.True(t, s.BalanceOf(alice).Equal(amt(1_000_000)))
		assert.True(t, s.BalanceOf("dave").IsZero())
	})

	t.Run("owner move is never taxed", func(t *testing.T) {
		s := seeded(t, WithShareTax(tax))
		require.NoError(t, s.Move(ctx, vault, alice, fund.Address("dave"), amt(100_000)))
		assert.True(t, s.BalanceOf(alice).Equal(amt(900_000)))
		assert.True(t, s.BalanceOf(bob).IsZero())
	})

	t.Run("owner swaps the policy at runtime", func(t *testing.T) {
		s := seeded(t, WithShareTax(tax))
		require.NoError(t, s.UpdateShareTax(vault, policy.NoShareTax{}))
		require.NoError(t, s.Transfer(ctx, alice, fund.Address("dave"), amt(100_000)))
		assert.True(t, s.BalanceOf(alice).Equal(amt(900_000)))
		assert.True(t, s.BalanceOf(bob).IsZero())
	})

	t.Run("only the owner swaps the policy", func(t *testing.T) {
		s := seeded(t, WithShareTax(tax))
		assert.ErrorIs(t, s.UpdateShareTax(alice, policy.NoShareTax{}), fund.ErrUnauthorized)
		assert.ErrorIs(t, s.UpdateShareTax(vault, nil), fund.ErrZeroAddress)
	})
}

func TestAllowances(t *testing.T) {
	ctx := context.Background()

	t.Run("finite allowance decrements", func(t *testing.T) {
		s := seeded(t)
		require.NoError(t, s.Approve(alice, bob, amt(500)))
		require.NoError(t, s.TransferFrom(ctx, bob, alice, carol, amt(300)))
		assert.True(t, s.Allowance(alice, bob).Equal(amt(200)))
		assert.ErrorIs(t, s.TransferFrom(ctx, bob, alice, carol, amt(201)), fund.ErrInsufficientAllowance)
	})

	t.Run("max allowance is infinite and never decremented", func(t *testing.T) {
		s := seeded(t)
		require.NoError(t, s.Approve(alice, bob, fixedpoint.MaxUint))
		require.NoError(t, s.TransferFrom(ctx, bob, alice, carol, amt(300)))
		assert.True(t, s.Allowance(alice, bob).Equal(fixedpoint.MaxUint))
	})

	t.Run("no allowance means no pull", func(t *testing.T) {
		s := seeded(t)
		assert.ErrorIs(t, s.TransferFrom(ctx, bob, alice, carol, amt(1)), fund.ErrInsufficientAllowance)
	})

	t.Run("failed transfer leaves allowance intact", func(t *testing.T) {
		s := seeded(t)
		require.NoError(t, s.Approve(alice, bob, amt(2_000_000)))
		assert.ErrorIs(t, s.TransferFrom(ctx, bob, alice, carol, amt(1_500_000)), fund.ErrInsufficientBalance)
		assert.True(t, s.Allowance(alice, bob).Equal(amt(2_000_000)))
	})
}

func TestOwnerPrimitives(t *testing.T) {
	ctx := context.Background()

	t.Run("only the owner may mint burn or move", func(t *testing.T) {
		s := seeded(t)
		assert.ErrorIs(t, s.Mint(ctx, alice, alice, amt(1)), fund.ErrUnauthorized)
		assert.ErrorIs(t, s.Burn(ctx, alice, alice, amt(1)), fund.ErrUnauthorized)
		assert.ErrorIs(t, s.Move(ctx, alice, alice, bob, amt(1)), fund.ErrUnauthorized)
	})

	t.Run("burn reduces supply", func(t *testing.T) {
		s := seeded(t)
		require.NoError(t, s.Burn(ctx, vault, alice, amt(400_000)))
		assert.True(t, s.TotalSupply().Equal(amt(600_000)))
		assert.ErrorIs(t, s.Burn(ctx, vault, alice, amt(600_001)), fund.ErrInsufficientBalance)
	})
}
