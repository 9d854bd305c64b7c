package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/fundvault/internal/fund"
)

const (
	admin = fund.Address("admin")
	alice = fund.Address("alice")
	bob   = fund.Address("bob")
)

func TestRegistry(t *testing.T) {
	t.Run("admin seeded at construction", func(t *testing.T) {
		r := NewRegistry(admin)
		assert.True(t, r.Has(admin, Admin))
		assert.False(t, r.Has(alice, Admin))
	})

	t.Run("grant and revoke", func(t *testing.T) {
		r := NewRegistry(admin)
		require.NoError(t, r.Grant(admin, alice, InflowManager))
		assert.True(t, r.Has(alice, InflowManager))
		assert.False(t, r.Has(alice, OutflowManager))

		require.NoError(t, r.Revoke(admin, alice, InflowManager))
		assert.False(t, r.Has(alice, InflowManager))
	})

	t.Run("only admins grant", func(t *testing.T) {
		r := NewRegistry(admin)
		assert.ErrorIs(t, r.Grant(alice, bob, Admin), fund.ErrUnauthorized)
		assert.ErrorIs(t, r.Revoke(alice, admin, Admin), fund.ErrUnauthorized)
	})

	t.Run("zero address cannot hold a role", func(t *testing.T) {
		r := NewRegistry(admin)
		assert.ErrorIs(t, r.Grant(admin, fund.ZeroAddress, Admin), fund.ErrZeroAddress)
	})

	t.Run("require helpers", func(t *testing.T) {
		r := NewRegistry(admin)
		require.NoError(t, r.Grant(admin, alice, OutflowManager))
		assert.NoError(t, r.RequireAdmin(admin))
		assert.ErrorIs(t, r.RequireAdmin(alice), fund.ErrUnauthorized)
		assert.NoError(t, r.RequireAny(alice, Admin, OutflowManager))
		assert.ErrorIs(t, r.RequireAny(bob, Admin, OutflowManager), fund.ErrUnauthorized)
	})
}
