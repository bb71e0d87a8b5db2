package usecase

import "github.com/arklim/identity-verification/internal/core/domain"

// AuthMetrics receives counters emitted by the authentication flows.
type AuthMetrics interface {
	LoginAttempt(outcome string)
	OTPIssued(purpose domain.OTPPurpose)
	OTPVerified(purpose domain.OTPPurpose, outcome string)
	RateLimited(purpose domain.OTPPurpose)
	AccountLocked()
}

type noopMetrics struct{}

func (noopMetrics) LoginAttempt(string) {}
func (noopMetrics) OTPIssued(domain.OTPPurpose) {}
func (noopMetrics) OTPVerified(domain.OTPPurpose, string) {}
func (noopMetrics) RateLimited(domain.OTPPurpose) {}
func (noopMetrics) AccountLocked() {}
