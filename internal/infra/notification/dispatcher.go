package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/infra/config"
	"github.com/arklim/identity-verification/internal/infra/logger"
)

// ErrChannelDisabled is returned when a message targets a channel switched off in configuration.
var ErrChannelDisabled = errors.New("notification channel disabled")

// LoggingDispatcher records outbound messages in the structured log instead of
// handing them to an SMS or mail gateway.
type LoggingDispatcher struct {
	logger       *zap.Logger
	smsEnabled   bool
	emailEnabled bool
	logContent   bool
}

// NewLoggingDispatcher constructs a dispatcher for the channels enabled in cfg.
// Message bodies carry one-time codes and are only logged when logContent is set.
func NewLoggingDispatcher(cfg config.NotificationSettings, log *zap.Logger, logContent bool) *LoggingDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingDispatcher{
		logger:       log.Named("notification"),
		smsEnabled:   cfg.SMSEnabled,
		emailEnabled: cfg.EmailEnabled,
		logContent:   logContent,
	}
}

func (d *LoggingDispatcher) SendSMS(ctx context.Context, phone string, message string) error {
	if !d.smsEnabled {
		return fmt.Errorf("sms to %s: %w", logger.MaskPhone(phone), ErrChannelDisabled)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("channel", "sms"),
		zap.String("to", logger.MaskPhone(phone)),
		zap.Int("length", len(message)),
	}
	if d.logContent {
		fields = append(fields, zap.String("message", message))
	}
	logger.WithContext(ctx, d.logger).Info("dispatch sms", fields...)
	return nil
}

func (d *LoggingDispatcher) SendEmail(ctx context.Context, email string, subject string, body string) error {
	if !d.emailEnabled {
		return fmt.Errorf("email to %s: %w", logger.MaskEmail(email), ErrChannelDisabled)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("channel", "email"),
		zap.String("to", logger.MaskEmail(email)),
		zap.String("subject", subject),
	}
	if d.logContent {
		fields = append(fields, zap.String("body", body))
	}
	logger.WithContext(ctx, d.logger).Info("dispatch email", fields...)
	return nil
}

var _ port.NotificationDispatcher = (*LoggingDispatcher)(nil)
