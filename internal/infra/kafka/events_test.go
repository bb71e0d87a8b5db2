package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
	closed bool
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer, *Producer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "identity"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "identity-verification",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer, producer
}

func receive(t *testing.T, f *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()
	select {
	case msg := <-f.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
	return nil, nil
}

func TestPublishUserRegistered(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t)

	registeredAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	event := domain.UserRegisteredEvent{
		EventID:        "event-123",
		UserID:         "user-789",
		OrganizationID: 42,
		MaskedPhone:    "+849****567",
		Role:           domain.UserRoleVisitor,
		Status:         domain.UserStatusPending,
		RegisteredAt:   registeredAt,
	}

	if err := publisher.PublishUserRegistered(context.Background(), event); err != nil {
		t.Fatalf("PublishUserRegistered returned error: %v", err)
	}

	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "identity.user.registered" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, err := msg.Key.Encode()
	if err != nil || string(key) != event.UserID {
		t.Fatalf("message must be keyed by user id, got %q (%v)", key, err)
	}

	if got := envelope["event_type"]; got != "identity.user.registered" {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["event_id"]; got != event.EventID {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["version"]; got != "1.0" {
		t.Fatalf("unexpected version: %v", got)
	}
	if got := envelope["timestamp"]; got != registeredAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if payload["masked_phone"] != event.MaskedPhone {
		t.Fatalf("unexpected masked_phone: %v", payload["masked_phone"])
	}
	if org, ok := payload["organization_id"].(float64); !ok || int64(org) != event.OrganizationID {
		t.Fatalf("unexpected organization_id: %v", payload["organization_id"])
	}
	if payload["status"] != "pending" || payload["role"] != "visitor" {
		t.Fatalf("unexpected status/role: %v/%v", payload["status"], payload["role"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "identity-verification" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishAccountLocked(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t)

	lockedUntil := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	event := domain.AccountLockedEvent{
		UserID:        "user-1",
		LoginAttempts: 5,
		LockedUntil:   lockedUntil,
	}

	if err := publisher.PublishAccountLocked(context.Background(), event); err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}

	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "identity.account.locked" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if id, _ := envelope["event_id"].(string); id == "" {
		t.Fatalf("expected a generated event id")
	}

	payload := envelope["payload"].(map[string]any)
	if attempts, ok := payload["login_attempts"].(float64); !ok || int(attempts) != 5 {
		t.Fatalf("unexpected login_attempts: %v", payload["login_attempts"])
	}
	if payload["locked_until"] != lockedUntil.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected locked_until: %v", payload["locked_until"])
	}
}

func TestPublishVerifiedAndReset(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if err := publisher.PublishUserVerified(ctx, domain.UserVerifiedEvent{
		UserID:     "user-1",
		Purpose:    domain.OTPPurposePhoneVerification,
		VerifiedAt: at,
	}); err != nil {
		t.Fatalf("PublishUserVerified returned error: %v", err)
	}
	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "identity.user.verified" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if envelope["payload"].(map[string]any)["purpose"] != string(domain.OTPPurposePhoneVerification) {
		t.Fatalf("unexpected purpose: %v", envelope["payload"])
	}

	if err := publisher.PublishPasswordReset(ctx, domain.PasswordResetEvent{UserID: "user-1", ResetAt: at}); err != nil {
		t.Fatalf("PublishPasswordReset returned error: %v", err)
	}
	msg, _ = receive(t, asyncProducer)
	if msg.Topic != "identity.user.password.reset" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
}

func TestPublishHonoursContextCancellation(t *testing.T) {
	publisher, asyncProducer, _ := newTestPublisher(t)
	asyncProducer.input <- &sarama.ProducerMessage{Topic: "filler"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishPasswordReset(ctx, domain.PasswordResetEvent{UserID: "user-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "identity"}}
	if got := producer.TopicName("user.verified"); got != "identity.user.verified" {
		t.Fatalf("unexpected topic: %s", got)
	}
	if got := producer.TopicName("identity.user.verified"); got != "identity.user.verified" {
		t.Fatalf("prefix applied twice: %s", got)
	}

	bare := &Producer{}
	if got := bare.TopicName("account.locked"); got != "account.locked" {
		t.Fatalf("unexpected topic without prefix: %s", got)
	}
}

func TestProducerCloseStopsErrorDrain(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{}, zaptest.NewLogger(t))

	asyncProducer.errors <- &sarama.ProducerError{
		Msg: &sarama.ProducerMessage{Topic: "identity.user.verified"},
		Err: errors.New("broker unavailable"),
	}

	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !asyncProducer.closed {
		t.Fatalf("expected the underlying producer to be closed")
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(config.KafkaSettings{}, zaptest.NewLogger(t)); !errors.Is(err, ErrNoBrokers) {
		t.Fatalf("expected ErrNoBrokers, got %v", err)
	}
}

func TestStubPublisherAcceptsAllEvents(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.PublishUserRegistered(ctx, domain.UserRegisteredEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishUserRegistered: %v", err)
	}
	if err := stub.PublishUserVerified(ctx, domain.UserVerifiedEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishUserVerified: %v", err)
	}
	if err := stub.PublishAccountLocked(ctx, domain.AccountLockedEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishAccountLocked: %v", err)
	}
	if err := stub.PublishPasswordReset(ctx, domain.PasswordResetEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishPasswordReset: %v", err)
	}
}
