package port

import (
	"context"
	"time"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
)

// TokenRepository persists refresh tokens and one-shot verification tokens.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// MarkRefreshTokenUsed stamps used_at if and only if the token is still
	// unused and unrevoked. The boolean reports whether this caller won;
	// a false result with no error means another rotation got there first.
	MarkRefreshTokenUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	// RevokeFamily revokes every live token descending from one issuance.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)

	CreateVerificationToken(ctx context.Context, token domain.VerificationToken) error
	GetVerificationTokenByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error)
	ConsumeVerificationToken(ctx context.Context, id string, at time.Time) error
}

// RevocationStore is a fast-path cache consulted on access-token validation
// so revoked sessions are rejected before the refresh token row expires.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}
