package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
	"github.com/inkwell/content-platform/internal/pkg/password"
)

// LoginLimiter abstracts the failed-attempt throttle (Redis).
type LoginLimiter interface {
	TooManyAttempts(ctx context.Context, username string) (bool, error)
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// AuthService authenticates credentials and issues token pairs.
type AuthService struct {
	repo    ports.UserRepository
	hasher  *password.Hasher
	issuer  *TokenIssuer
	limiter LoginLimiter
	audit   AuditRecorder
	log     zerolog.Logger
}

func NewAuthService(repo ports.UserRepository, hasher *password.Hasher, issuer *TokenIssuer, limiter LoginLimiter, audit AuditRecorder, log zerolog.Logger) *AuthService {
	return &AuthService{repo: repo, hasher: hasher, issuer: issuer, limiter: limiter, audit: audit, log: log}
}

// Login verifies the credentials and returns a signed access token plus
// a fresh refresh token. An unknown username and a wrong password both
// return domain.ErrInvalidCredentials so callers cannot enumerate
// accounts.
func (s *AuthService) Login(ctx context.Context, username, pass string) (*ports.AuthResult, error) {
	if username == "" || pass == "" {
		return nil, domain.ErrInvalidCredentials
	}

	// Throttle before any bcrypt work. A limiter outage must not take
	// logins down with it.
	blocked, err := s.limiter.TooManyAttempts(ctx, username)
	if err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("login limiter check failed, proceeding")
	} else if blocked {
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !s.hasher.Verify(pass, user.PasswordHash) {
		if limitErr := s.limiter.RecordFailure(ctx, username); limitErr != nil {
			s.log.Warn().Err(limitErr).Str("username", username).Msg("failed to record login failure")
		}
		return nil, domain.ErrInvalidCredentials
	}

	if limitErr := s.limiter.Reset(ctx, username); limitErr != nil {
		s.log.Warn().Err(limitErr).Str("username", username).Msg("failed to reset login limiter")
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.Record(domain.AuditEvent{UserID: user.ID, Action: domain.AuditLoggedIn, ActorID: user.ID, Timestamp: time.Now().UTC()})
	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

// Refresh exchanges a refresh token for a new token pair, rotating the
// stored token. No history is kept: the old token stops working the
// moment the new one is written.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.AuthResult, error) {
	if refreshToken == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*ports.AuthResult, error) {
	access, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.repo.UpdateRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &ports.AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         toView(user),
	}, nil
}

// newRefreshToken returns 32 random bytes hex-encoded. The token is
// opaque; all meaning lives in the stored mapping to the user.
func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
