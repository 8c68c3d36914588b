package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

const refreshTokenColumns = `id, account_id, token_hash, family_id, remember_me, ip_address,
	user_agent, created_at, expires_at, used_at, revoked_at`

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository wires a PostgreSQL-backed token repository.
func NewTokenRepository(db pgPool) *TokenRepository {
	return &TokenRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		db:      r.db,
		exec:    tx,
		builder: r.builder,
	}
}

// CreateRefreshToken inserts a refresh token row.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("refresh_tokens").
		Columns(
			"id", "account_id", "token_hash", "family_id", "remember_me",
			"ip_address", "user_agent", "created_at", "expires_at",
		).
		Values(
			token.ID, token.AccountID, token.TokenHash, token.FamilyID, token.RememberMe,
			token.IP, token.UserAgent, token.CreatedAt, token.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetRefreshTokenByHash retrieves a refresh token by its stored hash.
func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token_hash = $1`, refreshTokenColumns)

	var token domain.RefreshToken
	err := r.exec.QueryRow(ctx, stmt, tokenHash).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.FamilyID,
		&token.RememberMe,
		&token.IP,
		&token.UserAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.RevokedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &token, nil
}

// MarkRefreshTokenUsed stamps used_at only when the token is still unused and
// unrevoked. The single-statement compare-and-set is what guarantees one
// winner under concurrent rotation.
func (r *TokenRepository) MarkRefreshTokenUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	tag, err := r.exec.Exec(ctx,
		`UPDATE refresh_tokens
		    SET used_at = $2
		  WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL`,
		id, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RevokeRefreshToken revokes a single token.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	tag, err := r.exec.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RevokeFamily revokes every live token descending from one issuance.
func (r *TokenRepository) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAllForAccount revokes every live token belonging to the account.
func (r *TokenRepository) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`,
		accountID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredRefreshTokens removes rows whose validity window closed before the cutoff.
func (r *TokenRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.exec.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateVerificationToken inserts a one-shot verification token.
func (r *TokenRepository) CreateVerificationToken(ctx context.Context, token domain.VerificationToken) error {
	stmt, args, err := r.builder.Insert("verification_tokens").
		Columns("id", "account_id", "token_hash", "purpose", "created_at", "expires_at").
		Values(token.ID, token.AccountID, token.TokenHash, token.Purpose, token.CreatedAt, token.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}

	return nil
}

// GetVerificationTokenByHash retrieves a verification token by its stored hash.
func (r *TokenRepository) GetVerificationTokenByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error) {
	stmt := `SELECT id, account_id, token_hash, purpose, created_at, expires_at, used_at
	           FROM verification_tokens WHERE token_hash = $1`

	var token domain.VerificationToken
	err := r.exec.QueryRow(ctx, stmt, tokenHash).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification token: %w", err)
	}

	return &token, nil
}

// ConsumeVerificationToken marks the token used; already-consumed tokens do not match.
func (r *TokenRepository) ConsumeVerificationToken(ctx context.Context, id string, at time.Time) error {
	tag, err := r.exec.Exec(ctx,
		`UPDATE verification_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
