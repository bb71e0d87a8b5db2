package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/repository"
)

const (
	defaultOTPPrefix = "otp"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// incrementAttemptsScript refuses to resurrect an evicted record.
var incrementAttemptsScript = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

// OTPRepository keeps one hash per (purpose, identifier), expired by Redis TTL.
type OTPRepository struct {
	client red.UniversalClient
	prefix string
}

// NewOTPRepository constructs a new OTP repository with the provided Redis client and key prefix.
func NewOTPRepository(client red.UniversalClient, keyPrefix string) *OTPRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOTPPrefix
	}

	return &OTPRepository{client: client, prefix: prefix}
}

// Save replaces any existing record for the same purpose and identifier.
func (r *OTPRepository) Save(ctx context.Context, record domain.OTPRecord, ttl time.Duration) error {
	key := r.key(record.Purpose, record.Identifier)

	switch {
	case key == "":
		return errors.New("purpose and identifier are required")
	case strings.TrimSpace(record.Code) == "":
		return errors.New("code is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      record.Code,
		fieldCreatedAt: formatMillis(record.CreatedAt),
		fieldExpiresAt: formatMillis(record.ExpiresAt),
		fieldAttempts:  strconv.Itoa(record.Attempts),
	})
	pipe.PExpire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("store otp", err)
	}

	return nil
}

// Fetch retrieves the OTP record for the provided purpose and identifier.
func (r *OTPRepository) Fetch(ctx context.Context, purpose domain.OTPPurpose, identifier string) (*domain.OTPRecord, error) {
	key := r.key(purpose, identifier)
	if key == "" {
		return nil, errors.New("purpose and identifier are required")
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall otp", err)
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseMillis(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseMillis(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.OTPRecord{
		Purpose:    purpose,
		Identifier: strings.TrimSpace(identifier),
		Code:       code,
		Attempts:   attempts,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, purpose domain.OTPPurpose, identifier string) (int, error) {
	key := r.key(purpose, identifier)
	if key == "" {
		return 0, errors.New("purpose and identifier are required")
	}

	count, err := incrementAttemptsScript.Run(ctx, r.client, []string{key}, fieldAttempts).Int()
	if err != nil {
		return 0, unavailable("hincrby otp attempts", err)
	}
	if count < 0 {
		return 0, repository.ErrNotFound
	}

	return count, nil
}

// Delete removes the OTP entry. Deleting a missing entry is not an error.
func (r *OTPRepository) Delete(ctx context.Context, purpose domain.OTPPurpose, identifier string) error {
	key := r.key(purpose, identifier)
	if key == "" {
		return errors.New("purpose and identifier are required")
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable("delete otp", err)
	}

	return nil
}

func (r *OTPRepository) key(purpose domain.OTPPurpose, identifier string) string {
	p := strings.TrimSpace(string(purpose))
	identifier = strings.TrimSpace(identifier)
	if p == "" || identifier == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, p, identifier)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(v).UTC(), nil
}

var _ port.OTPStore = (*OTPRepository)(nil)
