package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
)

// StubPublisher logs events instead of sending them. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, eventID, userID string, fields ...zap.Field) {
	p.logger.Info("Stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("event_id", eventID),
			zap.String("user_id", userID),
		}, fields...)...,
	)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.EventID, event.UserID,
		zap.Int64("organization_id", event.OrganizationID),
		zap.String("masked_phone", event.MaskedPhone),
		zap.Time("registered_at", event.RegisteredAt),
	)
	return nil
}

func (p *StubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	p.logEvent(EventUserVerified, event.EventID, event.UserID,
		zap.String("purpose", string(event.Purpose)),
		zap.Time("verified_at", event.VerifiedAt),
	)
	return nil
}

func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(EventAccountLocked, event.EventID, event.UserID,
		zap.Int("login_attempts", event.LoginAttempts),
		zap.Time("locked_until", event.LockedUntil),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(EventPasswordReset, event.EventID, event.UserID, zap.Time("reset_at", event.ResetAt))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
