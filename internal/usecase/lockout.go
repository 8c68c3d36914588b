package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
)

// LockoutGuard enforces the failed-login policy: after a configurable number
// of consecutive failures the account is locked for a fixed window. The
// counter and lock timestamp live on the account row; the guard never keeps
// state of its own, so any number of instances behave identically.
type LockoutGuard struct {
	accounts  port.AccountRepository
	events    port.EventPublisher
	mailer    port.MailDispatcher
	threshold int
	lockFor   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLockoutGuard constructs a LockoutGuard from the account settings.
func NewLockoutGuard(cfg *config.AppConfig, accounts port.AccountRepository, events port.EventPublisher, mailer port.MailDispatcher, logger *zap.Logger) *LockoutGuard {
	threshold := cfg.Account.MaxFailedLogins
	if threshold <= 0 {
		threshold = 5
	}
	lockFor := cfg.Account.LockoutDuration
	if lockFor <= 0 {
		lockFor = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutGuard{
		accounts:  accounts,
		events:    events,
		mailer:    mailer,
		threshold: threshold,
		lockFor:   lockFor,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (g *LockoutGuard) WithClock(now func() time.Time) *LockoutGuard {
	if now != nil {
		g.now = now
	}
	return g
}

// Check rejects the attempt while the lockout window is open. The check runs
// before any password comparison so a locked account costs no hashing work.
func (g *LockoutGuard) Check(account *domain.Account) error {
	at := g.now().UTC()
	if !account.IsLocked(at) {
		return nil
	}
	return &AccountLockedError{
		Until:     *account.LockedUntil,
		Remaining: account.LockRemaining(at),
	}
}

// RecordFailure counts a failed attempt and reports whether this one tripped
// the lock. The counter increment, the lock transition, and the activity row
// commit in one transaction.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account *domain.Account, ip, userAgent string) (bool, error) {
	now := g.now().UTC()
	activity := domain.ActivityRecord{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Action:        domain.ActivityLoginFailed,
		IPAddress:     optionalString(ip),
		DeviceDetails: optionalString(userAgent),
		CreatedAt:     now,
	}

	result, err := g.accounts.RecordFailedLogin(ctx, account.ID, g.threshold, g.lockFor, activity)
	if err != nil {
		return false, fmt.Errorf("record failed login: %w", err)
	}

	account.FailedAttempts = result.Attempts
	if result.LockedUntil == nil {
		return false, nil
	}

	account.LockedUntil = result.LockedUntil

	g.logger.Warn("account locked after repeated failures",
		zap.String("account_id", account.ID),
		zap.Int("attempts", result.Attempts),
		zap.Time("locked_until", *result.LockedUntil),
	)

	if g.events != nil {
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			AccountID:      account.ID,
			FailedAttempts: result.Attempts,
			LockedUntil:    *result.LockedUntil,
			IPAddress:      optionalString(ip),
			LockedAt:       now,
		}
		if pubErr := g.events.PublishAccountLocked(ctx, event); pubErr != nil {
			g.logger.Warn("publish account locked event", zap.Error(pubErr))
		}
	}

	if g.mailer != nil {
		minutes := int(g.lockFor / time.Minute)
		if mailErr := g.mailer.SendLockoutNotice(ctx, account.Email, minutes); mailErr != nil {
			g.logger.Warn("send lockout notice", zap.Error(mailErr))
		}
	}

	return true, nil
}

// RecordSuccess clears the counter and the lock in one transaction with the
// login activity row.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, account *domain.Account, ip, userAgent string) error {
	now := g.now().UTC()
	activity := domain.ActivityRecord{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Action:        domain.ActivityLogin,
		IPAddress:     optionalString(ip),
		DeviceDetails: optionalString(userAgent),
		CreatedAt:     now,
	}

	if err := g.accounts.RecordSuccessfulLogin(ctx, account.ID, now, activity); err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	return nil
}
