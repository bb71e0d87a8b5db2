package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/repository"
)

func TestRateLimiter_AdmitsUpToMaxThenDenies(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(newMemKV(clock), "").WithClock(clock.Now)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		decision, err := limiter.Check(ctx, "+84901234567", domain.OTPPurposePhoneVerification, 3, time.Hour)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
		if decision.RemainingRequests != 3-i {
			t.Fatalf("check %d: remaining = %d, want %d", i, decision.RemainingRequests, 3-i)
		}
		if !decision.ResetTime.Equal(baseTime.Add(time.Hour)) {
			t.Fatalf("check %d: reset time = %v", i, decision.ResetTime)
		}
	}

	clock.Advance(20 * time.Minute)
	decision, err := limiter.Check(ctx, "+84901234567", domain.OTPPurposePhoneVerification, 3, time.Hour)
	if err != nil {
		t.Fatalf("fourth check: %v", err)
	}
	if decision.Allowed || decision.RemainingRequests != 0 {
		t.Fatalf("expected denial, got %+v", decision)
	}
	if !decision.ResetTime.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("denial reset time = %v, want window end", decision.ResetTime)
	}
}

func TestRateLimiter_ConcurrentDenialsAreNotCounted(t *testing.T) {
	clock := newTestClock()
	kv := newMemKV(clock)
	limiter := NewRateLimiter(kv, "").WithClock(clock.Now)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Check(ctx, "+84901234567", domain.OTPPurposePhoneVerification, 3, time.Hour)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Fatalf("expected exactly 3 admitted requests, got %d", allowed)
	}
	stored, err := kv.Get(ctx, "otp_rate_limit:phone_verification:+84901234567")
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if stored != "3" {
		t.Fatalf("stored count must stay at the limit, got %s", stored)
	}
}

func TestRateLimiter_WindowResetsAfterExpiry(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(newMemKV(clock), "").WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.Check(ctx, "a@example.com", domain.OTPPurposeEmailVerification, 2, 10*time.Minute); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if decision, _ := limiter.Check(ctx, "a@example.com", domain.OTPPurposeEmailVerification, 2, 10*time.Minute); decision.Allowed {
		t.Fatalf("expected denial inside the window")
	}

	clock.Advance(10 * time.Minute)

	decision, err := limiter.Check(ctx, "a@example.com", domain.OTPPurposeEmailVerification, 2, 10*time.Minute)
	if err != nil {
		t.Fatalf("check after window: %v", err)
	}
	if !decision.Allowed || decision.RemainingRequests != 1 {
		t.Fatalf("expected fresh window, got %+v", decision)
	}
}

func TestRateLimiter_KeysArePerIdentifierAndPurpose(t *testing.T) {
	clock := newTestClock()
	kv := newMemKV(clock)
	limiter := NewRateLimiter(kv, "").WithClock(clock.Now)
	ctx := context.Background()

	if _, err := limiter.Check(ctx, "+84901234567", domain.OTPPurposePasswordReset, 1, time.Hour); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := kv.Get(ctx, "otp_rate_limit:password_reset:+84901234567"); err != nil {
		t.Fatalf("expected counter under otp_rate_limit prefix: %v", err)
	}

	other, err := limiter.Check(ctx, "+84901234567", domain.OTPPurposePhoneVerification, 1, time.Hour)
	if err != nil || !other.Allowed {
		t.Fatalf("other purpose should have its own window: %+v %v", other, err)
	}
	another, err := limiter.Check(ctx, "+84907654321", domain.OTPPurposePasswordReset, 1, time.Hour)
	if err != nil || !another.Allowed {
		t.Fatalf("other identifier should have its own window: %+v %v", another, err)
	}
}

func TestRateLimiter_PropagatesStoreFailure(t *testing.T) {
	clock := newTestClock()
	kv := newMemKV(clock)
	kv.err = errBackendDown
	limiter := NewRateLimiter(kv, "").WithClock(clock.Now)

	_, err := limiter.Check(context.Background(), "+84901234567", domain.OTPPurposePhoneVerification, 3, time.Hour)
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRateLimiter_RejectsInvalidArguments(t *testing.T) {
	limiter := NewRateLimiter(newMemKV(newTestClock()), "")
	if _, err := limiter.Check(context.Background(), "x", domain.OTPPurposeLogin2FA, 0, time.Hour); err == nil {
		t.Fatalf("expected error for zero max requests")
	}
}
