package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/identity-verification/internal/core/domain"
)

const namespace = "identity"

// Register registers c with reg, returning the already registered collector
// when an identical one exists.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// AuthMetrics records authentication outcomes as Prometheus counters.
type AuthMetrics struct {
	LoginAttempts    *prometheus.CounterVec
	OTPIssuedTotal   *prometheus.CounterVec
	OTPVerifications *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	AccountsLocked   prometheus.Counter
}

// NewAuthMetrics registers the authentication collectors with reg.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	m := &AuthMetrics{}
	var err error

	if m.LoginAttempts, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.OTPIssuedTotal, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "issued_total",
		Help:      "One-time codes generated and handed to a delivery channel.",
	}, []string{"purpose"})); err != nil {
		return nil, err
	}

	if m.OTPVerifications, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "verifications_total",
		Help:      "One-time code verifications partitioned by purpose and outcome.",
	}, []string{"purpose", "outcome"})); err != nil {
		return nil, err
	}

	if m.RateLimitedTotal, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "rate_limited_total",
		Help:      "Code requests rejected by the rate limiter.",
	}, []string{"purpose"})); err != nil {
		return nil, err
	}

	if m.AccountsLocked, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "accounts_locked_total",
		Help:      "Accounts locked after repeated failed logins.",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *AuthMetrics) LoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) OTPIssued(purpose domain.OTPPurpose) {
	m.OTPIssuedTotal.WithLabelValues(string(purpose)).Inc()
}

func (m *AuthMetrics) OTPVerified(purpose domain.OTPPurpose, outcome string) {
	m.OTPVerifications.WithLabelValues(string(purpose), outcome).Inc()
}

func (m *AuthMetrics) RateLimited(purpose domain.OTPPurpose) {
	m.RateLimitedTotal.WithLabelValues(string(purpose)).Inc()
}

func (m *AuthMetrics) AccountLocked() {
	m.AccountsLocked.Inc()
}
