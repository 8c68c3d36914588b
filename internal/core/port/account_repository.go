package port

import (
	"context"
	"time"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
)

// FailedLoginResult reports the counter state after a failed attempt was recorded.
type FailedLoginResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// AccountRepository exposes persistence behavior for accounts.
//
// Composite mutations (failed-login recording, password rotation, challenge
// writes) execute inside a single transaction with the account row locked for
// the duration of the read-modify-write, so concurrent attempts against the
// same account never lose updates.
type AccountRepository interface {
	// Create inserts the account, its profile, the initial password history
	// entry, and the registration activity record in one transaction.
	Create(ctx context.Context, account domain.Account, profile domain.Profile, activity domain.ActivityRecord) error

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByEmail looks up a non-deleted account. Soft-deleted accounts are
	// reported as not found.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// EmailInUse reports whether the email is taken. When includeDeleted is
	// false, soft-deleted accounts do not count.
	EmailInUse(ctx context.Context, email string, includeDeleted bool) (bool, error)

	// RecordFailedLogin increments the failure counter, transitions the
	// account into the lockout window once the threshold is reached, and
	// writes the activity record, all atomically.
	RecordFailedLogin(ctx context.Context, accountID string, threshold int, lockFor time.Duration, activity domain.ActivityRecord) (FailedLoginResult, error)
	// RecordSuccessfulLogin resets the failure counter, clears the lockout,
	// stamps last_login_at, and writes the activity record atomically.
	RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time, activity domain.ActivityRecord) error

	// RotatePassword sets the new hash, stamps last_password_change, appends
	// the hash to history, prunes history beyond historyLimit, clears lockout
	// and reset-token state, and writes the activity record atomically.
	RotatePassword(ctx context.Context, accountID string, newHash string, at time.Time, historyLimit int, activity domain.ActivityRecord) error
	ListPasswordHistory(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error)

	SetTwoFactorChallenge(ctx context.Context, accountID string, codeHash string, expiresAt time.Time, activity domain.ActivityRecord) error
	ClearTwoFactorChallenge(ctx context.Context, accountID string) error
	SetTwoFactorEnabled(ctx context.Context, accountID string, enabled bool) error

	// SetResetToken overwrites any previously issued reset token.
	SetResetToken(ctx context.Context, accountID string, tokenHash string, expiresAt time.Time) error
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error)

	MarkVerified(ctx context.Context, accountID string) error
	AppendActivity(ctx context.Context, activity domain.ActivityRecord) error
}
