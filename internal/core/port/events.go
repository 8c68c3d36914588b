package port

import (
	"context"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishLoginSucceeded(ctx context.Context, event domain.LoginEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishTokenFamilyRevoked(ctx context.Context, event domain.TokenFamilyRevokedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
}
