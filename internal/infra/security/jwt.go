package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// ErrTokenInvalid covers every reason a token fails to verify.
var ErrTokenInvalid = errors.New("jwt: invalid token")

// Claims is the signed payload shared by access and refresh tokens. The login
// identifier is a phone number or an email address.
type Claims struct {
	Identifier     string `json:"idf"`
	OrganizationID int64  `json:"org"`
	Role           string `json:"role"`
	Type           string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies RS256 tokens with keys from a KeyProvider.
type JWTManager struct {
	keys   KeyProvider
	issuer string
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(keys KeyProvider, issuer string) *JWTManager {
	return &JWTManager{keys: keys, issuer: issuer}
}

// Sign mints a token for subject valid for ttl from issuedAt.
func (m *JWTManager) Sign(subject domain.TokenSubject, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt: user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt: ttl must be positive")
	}

	kid, key, err := m.keys.SigningKey()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: get signing key: %w", err)
	}

	issuedAt = issuedAt.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	claims := &Claims{
		Identifier:     subject.Identifier,
		OrganizationID: subject.OrganizationID,
		Role:           string(subject.Role),
		Type:           string(subject.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse verifies signature, issuer and time claims at now and returns the subject.
func (m *JWTManager) Parse(raw string, now time.Time) (*domain.TokenSubject, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, ErrKeyNotFound
		}
		return m.keys.VerificationKey(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing subject or iat", ErrTokenInvalid)
	}

	return &domain.TokenSubject{
		UserID:         claims.Subject,
		Identifier:     claims.Identifier,
		OrganizationID: claims.OrganizationID,
		Role:           domain.UserRole(claims.Role),
		Type:           domain.TokenType(claims.Type),
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// JWKS renders the verification keys as a JSON Web Key Set.
func (m *JWTManager) JWKS() ([]byte, error) {
	keys := m.keys.VerificationKeys()

	kids := make([]string, 0, len(keys))
	for kid := range keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	out := make([]map[string]string, 0, len(kids))
	for _, kid := range kids {
		key := keys[kid]
		out = append(out, map[string]string{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}

	return json.Marshal(map[string]any{"keys": out})
}
