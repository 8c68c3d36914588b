package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

const accountColumns = `id, email, password_hash, role, status, is_verified, two_factor_enabled,
	failed_login_attempts, locked_until, two_factor_code_hash, two_factor_expires_at,
	reset_token_hash, reset_expires_at, last_password_change, last_login_at,
	terms_accepted, created_at, deleted_at`

// AccountRepository implements port.AccountRepository using PostgreSQL.
// Composite mutations lock the account row inside a transaction so concurrent
// attempts serialize on the row instead of losing counter updates.
type AccountRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(db pgPool) *AccountRepository {
	return &AccountRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		db:      r.db,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts the account, profile, initial history entry, and activity row in one transaction.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account, profile domain.Profile, activity domain.ActivityRecord) error {
	return r.inTx(ctx, func(txRepo *AccountRepository) error {
		stmt, args, err := txRepo.builder.Insert("accounts").
			Columns(
				"id", "email", "password_hash", "role", "status", "is_verified",
				"two_factor_enabled", "failed_login_attempts", "last_password_change",
				"terms_accepted", "created_at",
			).
			Values(
				account.ID, account.Email, account.PasswordHash, account.Role,
				account.Status, account.IsVerified, account.TwoFactorEnabled,
				account.FailedAttempts, account.LastPasswordChange,
				account.TermsAccepted, account.CreatedAt,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert account sql: %w", err)
		}
		if _, err := txRepo.exec.Exec(ctx, stmt, args...); err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("insert account: %w", err)
		}

		stmt, args, err = txRepo.builder.Insert("account_profiles").
			Columns("account_id", "name", "created_at").
			Values(profile.AccountID, profile.Name, profile.CreatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert profile sql: %w", err)
		}
		if _, err := txRepo.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}

		if account.PasswordHash != nil {
			if err := txRepo.addPasswordHistory(ctx, account.ID, *account.PasswordHash, account.CreatedAt); err != nil {
				return err
			}
		}

		return txRepo.AppendActivity(ctx, activity)
	})
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return r.scanAccount(r.exec.QueryRow(ctx, stmt, id))
}

// GetByEmail retrieves a non-deleted account by email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM accounts WHERE email = $1 AND deleted_at IS NULL`, accountColumns)
	return r.scanAccount(r.exec.QueryRow(ctx, stmt, email))
}

// GetByResetTokenHash retrieves the account owning an outstanding reset token.
func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM accounts WHERE reset_token_hash = $1 AND deleted_at IS NULL`, accountColumns)
	return r.scanAccount(r.exec.QueryRow(ctx, stmt, tokenHash))
}

// EmailInUse reports whether the email is taken.
func (r *AccountRepository) EmailInUse(ctx context.Context, email string, includeDeleted bool) (bool, error) {
	query := r.builder.Select("1").From("accounts").Where(squirrel.Eq{"email": email})
	if !includeDeleted {
		query = query.Where("deleted_at IS NULL")
	}

	stmt, args, err := query.Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build email check sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}

	return true, nil
}

// RecordFailedLogin increments the failure counter under a row lock and
// transitions the account into the lockout window once the threshold is hit.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, accountID string, threshold int, lockFor time.Duration, activity domain.ActivityRecord) (port.FailedLoginResult, error) {
	var result port.FailedLoginResult

	err := r.inTx(ctx, func(txRepo *AccountRepository) error {
		var attempts int
		row := txRepo.exec.QueryRow(ctx,
			`SELECT failed_login_attempts FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
		if err := row.Scan(&attempts); err != nil {
			if err == pgx.ErrNoRows {
				return repository.ErrNotFound
			}
			return fmt.Errorf("lock account row: %w", err)
		}

		attempts++
		result.Attempts = attempts

		if threshold > 0 && attempts >= threshold {
			lockedUntil := activity.CreatedAt.Add(lockFor)
			result.LockedUntil = &lockedUntil

			if _, err := txRepo.exec.Exec(ctx,
				`UPDATE accounts SET failed_login_attempts = $2, locked_until = $3 WHERE id = $1`,
				accountID, attempts, lockedUntil); err != nil {
				return fmt.Errorf("lock account: %w", err)
			}

			locked := activity
			locked.Action = domain.ActivityAccountLocked
			if err := txRepo.AppendActivity(ctx, locked); err != nil {
				return err
			}
		} else {
			if _, err := txRepo.exec.Exec(ctx,
				`UPDATE accounts SET failed_login_attempts = $2 WHERE id = $1`,
				accountID, attempts); err != nil {
				return fmt.Errorf("record failed attempt: %w", err)
			}
		}

		return txRepo.AppendActivity(ctx, activity)
	})
	if err != nil {
		return port.FailedLoginResult{}, err
	}

	return result, nil
}

// RecordSuccessfulLogin clears the failure counter and lockout and stamps last_login_at.
func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time, activity domain.ActivityRecord) error {
	return r.inTx(ctx, func(txRepo *AccountRepository) error {
		tag, err := txRepo.exec.Exec(ctx,
			`UPDATE accounts
			    SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2
			  WHERE id = $1`,
			accountID, at)
		if err != nil {
			return fmt.Errorf("record successful login: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		return txRepo.AppendActivity(ctx, activity)
	})
}

// RotatePassword sets the new hash and resets lockout and reset-token state,
// appending and trimming password history in the same transaction.
func (r *AccountRepository) RotatePassword(ctx context.Context, accountID string, newHash string, at time.Time, historyLimit int, activity domain.ActivityRecord) error {
	return r.inTx(ctx, func(txRepo *AccountRepository) error {
		tag, err := txRepo.exec.Exec(ctx,
			`UPDATE accounts
			    SET password_hash = $2,
			        last_password_change = $3,
			        failed_login_attempts = 0,
			        locked_until = NULL,
			        reset_token_hash = NULL,
			        reset_expires_at = NULL
			  WHERE id = $1`,
			accountID, newHash, at)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		if err := txRepo.addPasswordHistory(ctx, accountID, newHash, at); err != nil {
			return err
		}
		if err := txRepo.trimPasswordHistory(ctx, accountID, historyLimit); err != nil {
			return err
		}

		return txRepo.AppendActivity(ctx, activity)
	})
}

// ListPasswordHistory returns the most recent password hashes, newest first.
func (r *AccountRepository) ListPasswordHistory(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	if limit <= 0 {
		limit = 3
	}

	stmt, args, err := r.builder.
		Select("id", "account_id", "password_hash", "created_at").
		From("password_history").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.PasswordHash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return entries, nil
}

// SetTwoFactorChallenge stores the hashed challenge code and its expiry.
func (r *AccountRepository) SetTwoFactorChallenge(ctx context.Context, accountID string, codeHash string, expiresAt time.Time, activity domain.ActivityRecord) error {
	return r.inTx(ctx, func(txRepo *AccountRepository) error {
		tag, err := txRepo.exec.Exec(ctx,
			`UPDATE accounts SET two_factor_code_hash = $2, two_factor_expires_at = $3 WHERE id = $1`,
			accountID, codeHash, expiresAt)
		if err != nil {
			return fmt.Errorf("store challenge: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		return txRepo.AppendActivity(ctx, activity)
	})
}

// ClearTwoFactorChallenge removes any pending challenge state.
func (r *AccountRepository) ClearTwoFactorChallenge(ctx context.Context, accountID string) error {
	_, err := r.exec.Exec(ctx,
		`UPDATE accounts SET two_factor_code_hash = NULL, two_factor_expires_at = NULL WHERE id = $1`,
		accountID)
	if err != nil {
		return fmt.Errorf("clear challenge: %w", err)
	}
	return nil
}

// SetTwoFactorEnabled flips the enrollment flag.
func (r *AccountRepository) SetTwoFactorEnabled(ctx context.Context, accountID string, enabled bool) error {
	tag, err := r.exec.Exec(ctx,
		`UPDATE accounts SET two_factor_enabled = $2 WHERE id = $1`, accountID, enabled)
	if err != nil {
		return fmt.Errorf("set two-factor enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetResetToken overwrites any previously issued reset token.
func (r *AccountRepository) SetResetToken(ctx context.Context, accountID string, tokenHash string, expiresAt time.Time) error {
	tag, err := r.exec.Exec(ctx,
		`UPDATE accounts SET reset_token_hash = $2, reset_expires_at = $3 WHERE id = $1`,
		accountID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkVerified flags the account's email as confirmed.
func (r *AccountRepository) MarkVerified(ctx context.Context, accountID string) error {
	tag, err := r.exec.Exec(ctx,
		`UPDATE accounts SET is_verified = TRUE WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendActivity inserts an audit row.
func (r *AccountRepository) AppendActivity(ctx context.Context, activity domain.ActivityRecord) error {
	var details any
	if len(activity.Details) > 0 {
		encoded, err := json.Marshal(activity.Details)
		if err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
		details = encoded
	}

	stmt, args, err := r.builder.Insert("activity_log").
		Columns("id", "account_id", "action", "ip_address", "device_details", "details", "created_at").
		Values(activity.ID, activity.AccountID, activity.Action, activity.IPAddress, activity.DeviceDetails, details, activity.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert activity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	return nil
}

func (r *AccountRepository) addPasswordHistory(ctx context.Context, accountID, hash string, at time.Time) error {
	if _, err := r.exec.Exec(ctx,
		`INSERT INTO password_history (account_id, password_hash, created_at) VALUES ($1, $2, $3)`,
		accountID, hash, at); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}
	return nil
}

func (r *AccountRepository) trimPasswordHistory(ctx context.Context, accountID string, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}

	stmt := `
		DELETE FROM password_history
		 WHERE account_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM password_history
				 WHERE account_id = $1
				 ORDER BY created_at DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, stmt, accountID, maxEntries); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	return nil
}

// inTx runs fn inside a transaction. Repositories already scoped to a
// transaction reuse it.
func (r *AccountRepository) inTx(ctx context.Context, fn func(*AccountRepository) error) error {
	if r.db == nil || r.exec != pgExecutor(r.db) {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(r.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.Status,
		&account.IsVerified,
		&account.TwoFactorEnabled,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.TwoFactorCodeHash,
		&account.TwoFactorExpiresAt,
		&account.ResetTokenHash,
		&account.ResetExpiresAt,
		&account.LastPasswordChange,
		&account.LastLoginAt,
		&account.TermsAccepted,
		&account.CreatedAt,
		&account.DeletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
