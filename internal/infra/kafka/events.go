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

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// Topics carrying authentication events.
const (
	topicAccountRegistered      = "auth.account.registered"
	topicAccountLocked          = "auth.account.locked"
	topicLoginSucceeded         = "auth.login.succeeded"
	topicLoginFailed            = "auth.login.failed"
	topicPasswordChanged        = "auth.password.changed"
	topicPasswordResetRequested = "auth.password.reset_requested"
	topicTokenFamilyRevoked     = "auth.token.family_revoked"
	topicSessionRevoked         = "auth.session.revoked"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes auth.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string         `json:"account_id"`
		Email        string         `json:"email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:    event.AccountID,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicAccountRegistered, event.AccountID, event.RegisteredAt, payload)
}

// PublishAccountLocked publishes auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		AccountID      string         `json:"account_id"`
		FailedAttempts int            `json:"failed_attempts"`
		LockedUntil    time.Time      `json:"locked_until"`
		IPAddress      *string        `json:"ip_address,omitempty"`
		LockedAt       time.Time      `json:"locked_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:      event.AccountID,
		FailedAttempts: event.FailedAttempts,
		LockedUntil:    event.LockedUntil.UTC(),
		IPAddress:      event.IPAddress,
		LockedAt:       event.LockedAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicAccountLocked, event.AccountID, event.LockedAt, payload)
}

// PublishLoginSucceeded publishes auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginEvent) error {
	return p.publish(ctx, event.EventID, topicLoginSucceeded, event.AccountID, event.OccurredAt, loginPayload(event))
}

// PublishLoginFailed publishes auth.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginEvent) error {
	return p.publish(ctx, event.EventID, topicLoginFailed, event.AccountID, event.OccurredAt, loginPayload(event))
}

func loginPayload(event domain.LoginEvent) any {
	return struct {
		AccountID  string         `json:"account_id"`
		Succeeded  bool           `json:"succeeded"`
		Attempt    int            `json:"attempt,omitempty"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		UserAgent  *string        `json:"user_agent,omitempty"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		Succeeded:  event.Succeeded,
		Attempt:    event.Attempt,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}
}

// PublishPasswordChanged publishes auth.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		ChangedAt     time.Time      `json:"changed_at"`
		ChangedBy     string         `json:"changed_by"`
		TokensRevoked int            `json:"tokens_revoked"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		ChangedAt:     event.ChangedAt.UTC(),
		ChangedBy:     event.ChangedBy,
		TokensRevoked: event.TokensRevoked,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicPasswordChanged, event.AccountID, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes auth.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID         string         `json:"account_id"`
		RequestID         string         `json:"request_id"`
		RequestedAt       time.Time      `json:"requested_at"`
		MaskedDestination string         `json:"masked_destination"`
		ExpiresAt         time.Time      `json:"expires_at"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:         event.AccountID,
		RequestID:         event.RequestID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		ExpiresAt:         event.ExpiresAt.UTC(),
		IPAddress:         event.IPAddress,
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicPasswordResetRequested, event.AccountID, event.RequestedAt, payload)
}

// PublishTokenFamilyRevoked publishes auth.token.family_revoked events.
func (p *EventPublisher) PublishTokenFamilyRevoked(ctx context.Context, event domain.TokenFamilyRevokedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		FamilyID      string         `json:"family_id"`
		TokensRevoked int            `json:"tokens_revoked"`
		Reason        string         `json:"reason"`
		RevokedAt     time.Time      `json:"revoked_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		FamilyID:      event.FamilyID,
		TokensRevoked: event.TokensRevoked,
		Reason:        event.Reason,
		RevokedAt:     event.RevokedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicTokenFamilyRevoked, event.AccountID, event.RevokedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		AccountID     string         `json:"account_id"`
		TokenID       string         `json:"token_id,omitempty"`
		RevokedBy     string         `json:"revoked_by"`
		Reason        string         `json:"reason"`
		TokensRevoked int            `json:"tokens_revoked"`
		RevokedAt     time.Time      `json:"revoked_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:     event.AccountID,
		TokenID:       event.TokenID,
		RevokedBy:     event.RevokedBy,
		Reason:        event.Reason,
		TokensRevoked: event.TokensRevoked,
		RevokedAt:     event.RevokedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, topicSessionRevoked, event.AccountID, event.RevokedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
