package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs auth.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(topicAccountRegistered, event.AccountID, event.RegisteredAt, map[string]any{
		"email": event.Email,
	})
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(topicAccountLocked, event.AccountID, event.LockedAt, map[string]any{
		"failed_attempts": event.FailedAttempts,
		"locked_until":    event.LockedUntil,
	})
	return nil
}

// PublishLoginSucceeded logs auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginEvent) error {
	p.logEvent(topicLoginSucceeded, event.AccountID, event.OccurredAt, map[string]any{
		"succeeded": true,
	})
	return nil
}

// PublishLoginFailed logs auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginEvent) error {
	p.logEvent(topicLoginFailed, event.AccountID, event.OccurredAt, map[string]any{
		"succeeded": false,
		"attempt":   event.Attempt,
	})
	return nil
}

// PublishPasswordChanged logs auth.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(topicPasswordChanged, event.AccountID, event.ChangedAt, map[string]any{
		"changed_by":     event.ChangedBy,
		"tokens_revoked": event.TokensRevoked,
	})
	return nil
}

// PublishPasswordResetRequested logs auth.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(topicPasswordResetRequested, event.AccountID, event.RequestedAt, map[string]any{
		"request_id":         event.RequestID,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
	})
	return nil
}

// PublishTokenFamilyRevoked logs auth.token.family_revoked events.
func (p *StubPublisher) PublishTokenFamilyRevoked(_ context.Context, event domain.TokenFamilyRevokedEvent) error {
	p.logEvent(topicTokenFamilyRevoked, event.AccountID, event.RevokedAt, map[string]any{
		"family_id":      event.FamilyID,
		"tokens_revoked": event.TokensRevoked,
		"reason":         event.Reason,
	})
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(topicSessionRevoked, event.AccountID, event.RevokedAt, map[string]any{
		"token_id":       event.TokenID,
		"reason":         event.Reason,
		"tokens_revoked": event.TokensRevoked,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
