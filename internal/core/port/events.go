package port

import (
	"context"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error
}

// NotificationDispatcher delivers messages to a user's phone or mailbox.
// A non-nil error means the message was not accepted for delivery.
type NotificationDispatcher interface {
	SendSMS(ctx context.Context, phone string, message string) error
	SendEmail(ctx context.Context, email string, subject string, body string) error
}
