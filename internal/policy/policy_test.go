package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/roles"
)

const (
	admin = fund.Address("admin")
	alice = fund.Address("alice")
	bob   = fund.Address("bob")
)

func TestCompliancePolicies(t *testing.T) {
	t.Run("allow all", func(t *testing.T) {
		assert.True(t, AllowAll{}.IsAllowed(alice))
	})

	t.Run("blacklist", func(t *testing.T) {
		p := NewManualBlacklist(roles.NewRegistry(admin))
		assert.True(t, p.IsAllowed(alice))

		assert.ErrorIs(t, p.UpdateBanned(alice, bob, true), fund.ErrUnauthorized)
		require.NoError(t, p.UpdateBanned(admin, bob, true))
		assert.False(t, p.IsAllowed(bob))
		assert.True(t, p.IsAllowed(alice))

		require.NoError(t, p.UpdateBanned(admin, bob, false))
		assert.True(t, p.IsAllowed(bob))
	})

	t.Run("whitelist", func(t *testing.T) {
		p := NewWhitelist(roles.NewRegistry(admin))
		assert.False(t, p.IsAllowed(alice))

		require.NoError(t, p.UpdateAllowed(admin, alice, true))
		assert.True(t, p.IsAllowed(alice))
		assert.False(t, p.IsAllowed(bob))

		require.NoError(t, p.UpdateAllowed(admin, alice, false))
		assert.False(t, p.IsAllowed(alice))
	})
}

func TestVanillaShareTax(t *testing.T) {
	cA := fund.Address("collector-a")
	cB := fund.Address("collector-b")
	pct := func(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

	newTax := func(t *testing.T) *VanillaShareTax {
		t.Helper()
		// 1% and 0.5% in parts per million
		p, err := NewVanillaShareTax(roles.NewRegistry(admin), cA, cB, pct(10_000), pct(5_000))
		require.NoError(t, err)
		return p
	}

	t.Run("levies both collectors with floor division", func(t *testing.T) {
		p := newTax(t)
		due := p.TaxFor(alice, bob, decimal.NewFromInt(1_000_001))
		require.Len(t, due, 2)
		assert.Equal(t, cA, due[0].Collector)
		assert.True(t, due[0].Amount.Equal(decimal.NewFromInt(10_000)))
		assert.Equal(t, cB, due[1].Collector)
		assert.True(t, due[1].Amount.Equal(decimal.NewFromInt(5_000)))
	})

	t.Run("amounts too small to tax owe nothing", func(t *testing.T) {
		p := newTax(t)
		assert.Empty(t, p.TaxFor(alice, bob, decimal.NewFromInt(99)))
	})

	t.Run("vip sender pays nothing", func(t *testing.T) {
		p := newTax(t)
		require.NoError(t, p.UpdateVip(admin, alice, true))
		assert.Empty(t, p.TaxFor(alice, bob, decimal.NewFromInt(1_000_000)))
		// vip status does not cover the receiving side
		assert.NotEmpty(t, p.TaxFor(bob, alice, decimal.NewFromInt(1_000_000)))
	})

	t.Run("exempt covers either side", func(t *testing.T) {
		p := newTax(t)
		require.NoError(t, p.UpdateExempt(admin, bob, true))
		assert.Empty(t, p.TaxFor(alice, bob, decimal.NewFromInt(1_000_000)))
		assert.Empty(t, p.TaxFor(bob, alice, decimal.NewFromInt(1_000_000)))
	})

	t.Run("updates are admin gated", func(t *testing.T) {
		p := newTax(t)
		assert.ErrorIs(t, p.UpdateVip(alice, bob, true), fund.ErrUnauthorized)
		assert.ErrorIs(t, p.UpdateExempt(alice, bob, true), fund.ErrUnauthorized)
	})

	t.Run("zero collector rejected", func(t *testing.T) {
		_, err := NewVanillaShareTax(roles.NewRegistry(admin), fund.ZeroAddress, cB, pct(1), pct(1))
		assert.ErrorIs(t, err, fund.ErrZeroAddress)
	})
}
