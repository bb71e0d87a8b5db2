package domain

import "time"

// TokenType distinguishes access tokens from refresh tokens sharing one payload.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is a freshly minted access/refresh token couple.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenSubject is the payload shared by both tokens of a pair.
type TokenSubject struct {
	UserID         string
	Identifier     string
	OrganizationID int64
	Role           UserRole
	Type           TokenType
	IssuedAt       time.Time
	ExpiresAt      time.Time
}
