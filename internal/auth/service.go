// Package auth issues and verifies the bearer tokens the gateway accepts.
// A token binds the caller to a ledger address; role grants stay in the
// roles registry and are never trusted from the token itself.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/terminal-bench/fundvault/internal/fund"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type Service struct {
	jwtSecret string
	ttl       time.Duration
}

type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

func NewService(jwtSecret string, ttl time.Duration) *Service {
	return &Service{jwtSecret: jwtSecret, ttl: ttl}
}

// Issue mints a signed token for addr.
func (s *Service) Issue(addr fund.Address) (string, error) {
	if addr.IsZero() {
		return "", fund.ErrZeroAddress
	}
	now := time.Now()
	claims := &Claims{
		Address: string(addr),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   string(addr),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// Verify checks the signature and expiry and returns the caller address.
func (s *Service) Verify(tokenString string) (fund.Address, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fund.ZeroAddress, ErrTokenExpired
		}
		return fund.ZeroAddress, ErrInvalidToken
	}
	if !token.Valid || claims.Address == "" {
		return fund.ZeroAddress, ErrInvalidToken
	}
	return fund.Address(claims.Address), nil
}
