package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/fundvault/internal/fund"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewService("secret", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := s.Issue(fund.Address("alice"))
		require.NoError(t, err)
		addr, err := s.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, fund.Address("alice"), addr)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := s.Issue(fund.Address("alice"))
		require.NoError(t, err)
		_, err = NewService("other", time.Hour).Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short := NewService("secret", -time.Minute)
		token, err := short.Issue(fund.Address("alice"))
		require.NoError(t, err)
		_, err = short.Verify(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("zero address", func(t *testing.T) {
		_, err := s.Issue(fund.ZeroAddress)
		assert.ErrorIs(t, err, fund.ErrZeroAddress)
	})
}
