package domain

import "time"

// OTPPurpose scopes a one-time code to a single flow.
type OTPPurpose string

const (
	OTPPurposePhoneVerification OTPPurpose = "phone_verification"
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
	OTPPurposePasswordReset     OTPPurpose = "password_reset"
	OTPPurposeLogin2FA          OTPPurpose = "login_2fa"
)

// Valid reports whether the purpose is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposePhoneVerification, OTPPurposeEmailVerification, OTPPurposePasswordReset, OTPPurposeLogin2FA:
		return true
	}
	return false
}

// OTPRecord is a live one-time code keyed by (identifier, purpose).
type OTPRecord struct {
	Purpose    OTPPurpose
	Identifier string
	Code       string
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether now is past the record expiry.
func (r OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// OTPFailure explains why a verification did not succeed.
type OTPFailure string

const (
	OTPFailureNone        OTPFailure = ""
	OTPFailureNotFound    OTPFailure = "NOT_FOUND"
	OTPFailureExpired     OTPFailure = "EXPIRED"
	OTPFailureMaxAttempts OTPFailure = "MAX_ATTEMPTS"
	OTPFailureInvalid     OTPFailure = "INVALID"
)

// OTPVerification is the outcome of a verify call.
type OTPVerification struct {
	Success           bool
	Reason            OTPFailure
	RemainingAttempts int
}

// RateLimitDecision is the outcome of a fixed-window rate limit check.
type RateLimitDecision struct {
	Allowed           bool
	RemainingRequests int
	ResetTime         time.Time
}
