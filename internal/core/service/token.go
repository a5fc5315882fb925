package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkwell/content-platform/internal/core/domain"
)

// TokenIssuer signs time-bounded access tokens from identity claims.
// Verification of incoming tokens is the HTTP middleware's concern;
// this type only issues.
type TokenIssuer struct {
	secret string
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue returns a signed HS256 token carrying the user's identity.
func (i *TokenIssuer) Issue(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(i.ttl).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(i.secret))
}
