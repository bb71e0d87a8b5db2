package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/infra/security"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// ErrTokenTypeMismatch indicates an access token was presented where a refresh token was expected, or vice versa.
var ErrTokenTypeMismatch = errors.New("token type mismatch")

// TokenIssuer mints and verifies signed access/refresh token pairs.
type TokenIssuer struct {
	jwt        *security.JWTManager
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. Non-positive TTLs fall back to one hour and seven days.
func NewTokenIssuer(jwt *security.JWTManager, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	return &TokenIssuer{
		jwt:        jwt,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		t.now = now
	}
	return t
}

// AccessTTL returns the lifetime of access tokens.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// Issue signs an access and a refresh token carrying the same subject.
func (t *TokenIssuer) Issue(user domain.User, identifier string) (domain.TokenPair, error) {
	subject := domain.TokenSubject{
		UserID:         user.ID,
		Identifier:     identifier,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}
	issuedAt := t.now()

	subject.Type = domain.TokenTypeAccess
	access, accessExp, err := t.jwt.Sign(subject, issuedAt, t.accessTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	subject.Type = domain.TokenTypeRefresh
	refresh, refreshExp, err := t.jwt.Sign(subject, issuedAt, t.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Parse verifies raw and checks it is of the expected type.
func (t *TokenIssuer) Parse(raw string, expected domain.TokenType) (*domain.TokenSubject, error) {
	subject, err := t.jwt.Parse(raw, t.now())
	if err != nil {
		return nil, err
	}
	if subject.Type != expected {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTokenTypeMismatch, subject.Type, expected)
	}
	return subject, nil
}
