package port

import (
	"context"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// KeyValueStore exposes the TTL-aware cache operations shared by the limiter and OTP flows.
// Get returns repository.ErrNotFound for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment adds one to the counter at key unless it already holds limit,
	// applying ttl only when the key is created. It reports the stored count and
	// whether the increment happened.
	Increment(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)
	// RemainingTTL returns zero for missing keys or keys without expiry.
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)
}

// OTPStore persists one live one-time code per (purpose, identifier).
type OTPStore interface {
	// Save overwrites any previous record for the same purpose and identifier.
	Save(ctx context.Context, record domain.OTPRecord, ttl time.Duration) error
	Fetch(ctx context.Context, purpose domain.OTPPurpose, identifier string) (*domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, purpose domain.OTPPurpose, identifier string) (int, error)
	Delete(ctx context.Context, purpose domain.OTPPurpose, identifier string) error
}
