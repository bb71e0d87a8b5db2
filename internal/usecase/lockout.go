package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
)

const (
	defaultLockThreshold = 5
	defaultLockDuration  = 30 * time.Minute
)

// AccountLockPolicy tracks failed logins on the user record and derives lock state.
type AccountLockPolicy struct {
	users     port.UserRepository
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewAccountLockPolicy constructs a lock policy. Non-positive values fall back to 5 attempts and 30 minutes.
func NewAccountLockPolicy(users port.UserRepository, threshold int, duration time.Duration) *AccountLockPolicy {
	if threshold <= 0 {
		threshold = defaultLockThreshold
	}
	if duration <= 0 {
		duration = defaultLockDuration
	}
	return &AccountLockPolicy{
		users:     users,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (p *AccountLockPolicy) WithClock(now func() time.Time) *AccountLockPolicy {
	if now != nil {
		p.now = now
	}
	return p
}

// Threshold returns the number of failures that trigger a lock.
func (p *AccountLockPolicy) Threshold() int {
	return p.threshold
}

// RecordFailedAttempt increments the failure counter in storage and locks the
// account once the threshold is reached. The increment is a single atomic write.
func (p *AccountLockPolicy) RecordFailedAttempt(ctx context.Context, user domain.User) (*domain.User, error) {
	updated, err := p.users.IncrementLoginAttempts(ctx, user.ID, p.threshold, p.now().Add(p.duration))
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}
	return updated, nil
}

// RecordSuccess clears the counter and the lock and stamps the login time.
func (p *AccountLockPolicy) RecordSuccess(ctx context.Context, user domain.User) (*domain.User, error) {
	now := p.now()
	if err := p.users.ResetLoginAttempts(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record successful login: %w", err)
	}

	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	return &user, nil
}

// IsLocked reports whether the lock window is in force. A past lock counts as unlocked.
func (p *AccountLockPolicy) IsLocked(user domain.User) bool {
	return user.IsLocked(p.now())
}

// RemainingAttempts returns how many failures are left before the account locks.
func (p *AccountLockPolicy) RemainingAttempts(user domain.User) int {
	remaining := p.threshold - user.LoginAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}
