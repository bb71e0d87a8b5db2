package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, published to <topic_prefix>.<event type>.
const (
	EventUserRegistered = "user.registered"
	EventUserVerified   = "user.verified"
	EventAccountLocked  = "account.locked"
	EventPasswordReset  = "user.password.reset"
)

// EventPublisher implements port.EventPublisher on Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: topic,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID         string    `json:"user_id"`
		OrganizationID int64     `json:"organization_id"`
		MaskedPhone    string    `json:"masked_phone,omitempty"`
		Role           string    `json:"role"`
		Status         string    `json:"status"`
		RegisteredAt   time.Time `json:"registered_at"`
	}{
		UserID:         event.UserID,
		OrganizationID: event.OrganizationID,
		MaskedPhone:    event.MaskedPhone,
		Role:           string(event.Role),
		Status:         string(event.Status),
		RegisteredAt:   event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishUserVerified publishes user.verified events.
func (p *EventPublisher) PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Purpose    string    `json:"purpose"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		UserID:     event.UserID,
		Purpose:    string(event.Purpose),
		VerifiedAt: event.VerifiedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventUserVerified, event.UserID, event.VerifiedAt, payload)
}

// PublishAccountLocked publishes account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID        string    `json:"user_id"`
		LoginAttempts int       `json:"login_attempts"`
		LockedUntil   time.Time `json:"locked_until"`
	}{
		UserID:        event.UserID,
		LoginAttempts: event.LoginAttempts,
		LockedUntil:   event.LockedUntil.UTC(),
	}
	return p.publish(ctx, event.EventID, EventAccountLocked, event.UserID, time.Time{}, payload)
}

// PublishPasswordReset publishes user.password.reset events.
func (p *EventPublisher) PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error {
	payload := struct {
		UserID  string    `json:"user_id"`
		ResetAt time.Time `json:"reset_at"`
	}{
		UserID:  event.UserID,
		ResetAt: event.ResetAt.UTC(),
	}
	return p.publish(ctx, event.EventID, EventPasswordReset, event.UserID, event.ResetAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
