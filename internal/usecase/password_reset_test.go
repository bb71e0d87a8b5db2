package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
)

func TestForgotPassword_DoesNotRevealExistence(t *testing.T) {
	h := newAuthHarness(t)
	h.activeUser(t, "user-1", testPhone, "Secret123")
	ctx := context.Background()

	known, err := h.svc.ForgotPassword(ctx, "0901234567")
	if err != nil {
		t.Fatalf("ForgotPassword known: %v", err)
	}
	unknown, err := h.svc.ForgotPassword(ctx, "+84907654321")
	if err != nil {
		t.Fatalf("ForgotPassword unknown: %v", err)
	}
	if known != unknown || known != PasswordResetRequestedMessage {
		t.Fatalf("replies differ: %q vs %q", known, unknown)
	}

	if h.notifier.sentSMS() != 1 || h.notifier.sms[0].to != testPhone {
		t.Fatalf("expected a single SMS to the registered phone, got %+v", h.notifier.sms)
	}
	record, ok := h.otpStore.get(domain.OTPPurposePasswordReset, testPhone)
	if !ok || !record.ExpiresAt.Equal(baseTime.Add(30*time.Minute)) {
		t.Fatalf("expected a 30 minute reset code, got %+v", record)
	}
}

func TestForgotPassword_RateLimitIsIdenticalForUnknownIdentifiers(t *testing.T) {
	h := newAuthHarness(t)
	h.activeUser(t, "user-1", testPhone, "Secret123")
	ctx := context.Background()

	for _, identifier := range []string{testPhone, "+84907654321"} {
		for i := 0; i < 3; i++ {
			if _, err := h.svc.ForgotPassword(ctx, identifier); err != nil {
				t.Fatalf("ForgotPassword %s #%d: %v", identifier, i+1, err)
			}
		}
		_, err := h.svc.ForgotPassword(ctx, identifier)
		requireCode(t, err, apperror.CodeRateLimited)
	}

	if h.notifier.sentSMS() != 3 {
		t.Fatalf("expected codes only for the registered phone, got %d", h.notifier.sentSMS())
	}
}

func TestForgotPassword_DeliveryFailure(t *testing.T) {
	h := newAuthHarness(t)
	h.activeUser(t, "user-1", testPhone, "Secret123")
	h.notifier.err = errors.New("gateway timeout")

	_, err := h.svc.ForgotPassword(context.Background(), testPhone)
	requireCode(t, err, apperror.CodeDeliveryFailed)
}

func TestForgotPassword_InvalidIdentifier(t *testing.T) {
	h := newAuthHarness(t)

	_, err := h.svc.ForgotPassword(context.Background(), "abc")
	requireCode(t, err, apperror.CodeInvalidIdentifier)
}

func TestResetPassword_ReplacesPasswordAndClearsLock(t *testing.T) {
	h := newAuthHarness(t)
	user := h.activeUser(t, "user-1", testPhone, "Secret123")
	until := baseTime.Add(20 * time.Minute)
	user.LoginAttempts = 5
	user.LockedUntil = &until
	h.users.users[user.ID] = user
	ctx := context.Background()

	if _, err := h.svc.ForgotPassword(ctx, testPhone); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	code := h.notifier.lastCode(t)

	if err := h.svc.ResetPassword(ctx, testPhone, code, "NewSecret456", nil); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	stored := h.users.get(user.ID)
	if stored.LoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("expected counter and lock cleared, got %+v", stored)
	}
	if len(h.events.resets) != 1 {
		t.Fatalf("expected a password reset event")
	}

	if _, err := h.svc.Login(ctx, domain.Credentials{Identifier: testPhone, Password: "NewSecret456"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	_, err := h.svc.Login(ctx, domain.Credentials{Identifier: testPhone, Password: "Secret123"})
	requireCode(t, err, apperror.CodeInvalidCredentials)

	err = h.svc.ResetPassword(ctx, testPhone, code, "Another789", nil)
	requireCode(t, err, apperror.CodeOTPNotFound)
}

func TestResetPassword_Validation(t *testing.T) {
	h := newAuthHarness(t)
	h.activeUser(t, "user-1", testPhone, "Secret123")
	ctx := context.Background()

	requireCode(t, h.svc.ResetPassword(ctx, "", "123456", "NewSecret456", nil), apperror.CodeRequiredFieldMissing)
	requireCode(t, h.svc.ResetPassword(ctx, "12", "123456", "NewSecret456", nil), apperror.CodeInvalidIdentifier)
	requireCode(t, h.svc.ResetPassword(ctx, testPhone, "1234", "NewSecret456", nil), apperror.CodeInvalidOTPFormat)
	requireCode(t, h.svc.ResetPassword(ctx, testPhone, "123456", "short1", nil), apperror.CodeWeakPassword)
}

func TestResetPassword_ExpiredCode(t *testing.T) {
	h := newAuthHarness(t)
	h.activeUser(t, "user-1", testPhone, "Secret123")
	ctx := context.Background()

	if _, err := h.svc.ForgotPassword(ctx, testPhone); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	code := h.notifier.lastCode(t)
	h.clock.Advance(31 * time.Minute)

	requireCode(t, h.svc.ResetPassword(ctx, testPhone, code, "NewSecret456", nil), apperror.CodeOTPExpired)
}

func TestResetPassword_ScopedToOrganization(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()
	first := h.activeUser(t, "user-org-1", testPhone, "Secret123")

	second := first
	second.ID = "user-org-2"
	second.OrganizationID = 2
	if err := h.users.Create(ctx, second); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := h.svc.ForgotPassword(ctx, testPhone); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	org := int64(2)
	if err := h.svc.ResetPassword(ctx, testPhone, h.notifier.lastCode(t), "NewSecret456", &org); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if stored := h.users.get(second.ID); stored.PasswordHash == second.PasswordHash {
		t.Fatalf("expected org 2 password to change")
	}
	if stored := h.users.get(first.ID); stored.PasswordHash != first.PasswordHash {
		t.Fatalf("org 1 password must be untouched")
	}
}
