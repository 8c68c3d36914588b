package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/logger"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

const resetTokenBytes = 32

// PasswordService owns the password lifecycle: authenticated changes, the
// forgot/reset flow, and the reuse and minimum-age policies.
type PasswordService struct {
	cfg        *config.AppConfig
	accounts   port.AccountRepository
	tokens     *TokenService
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	rateLimits port.RateLimitStore
	events     port.EventPublisher
	mailer     port.MailDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	tokens *TokenService,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	rateLimits port.RateLimitStore,
	events port.EventPublisher,
	mailer port.MailDispatcher,
	log *zap.Logger,
) *PasswordService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		cfg:        cfg,
		accounts:   accounts,
		tokens:     tokens,
		hasher:     hasher,
		policy:     policy,
		rateLimits: rateLimits,
		events:     events,
		mailer:     mailer,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// Change rotates the password for an authenticated account. The current
// password must verify, the minimum age must have elapsed, and the candidate
// must clear the strength policy and the reuse window.
func (s *PasswordService) Change(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if account.Status == domain.AccountStatusBlocked {
		return ErrAccountBlocked
	}
	if !account.HasPassword() {
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(currentPassword, *account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if minAge := s.cfg.Account.MinPasswordAge; minAge > 0 && !account.LastPasswordChange.IsZero() {
		if s.now().UTC().Before(account.LastPasswordChange.Add(minAge)) {
			return ErrPasswordTooRecent
		}
	}

	if err := s.applyNewPassword(ctx, account, newPassword, domain.ActivityPasswordChanged); err != nil {
		return err
	}

	return s.afterRotation(ctx, account, "change")
}

// Forgot starts the reset flow. The response shape never reveals whether the
// email matches an account; unknown addresses and throttled requests are
// swallowed after logging.
func (s *PasswordService) Forgot(ctx context.Context, email, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	now := s.now().UTC()
	if throttled, err := s.resetThrottled(ctx, email, now); err != nil {
		return err
	} else if throttled {
		s.logger.Warn("password reset throttled",
			zap.String("email", logger.MaskEmail(email)),
			zap.String("ip", logger.MaskIP(ip)),
		)
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset for unknown email", zap.String("email", logger.MaskEmail(email)))
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if account.Status == domain.AccountStatusBlocked || !account.HasPassword() {
		return nil
	}

	token, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	ttl := s.cfg.Account.ResetTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	expiresAt := now.Add(ttl)

	// Overwriting any previous token keeps at most one reset live per account.
	if err := s.accounts.SetResetToken(ctx, account.ID, security.HashToken(token), expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, account.Email, token); err != nil {
		// The response shape must not depend on whether the address exists,
		// so a delivery failure cannot surface to the caller.
		s.logger.Warn("send reset email",
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err),
		)
		return nil
	}

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			AccountID:         account.ID,
			RequestID:         uuid.NewString(),
			RequestedAt:       now,
			MaskedDestination: logger.MaskEmail(account.Email),
			ExpiresAt:         expiresAt,
			IPAddress:         optionalString(ip),
		}
		if pubErr := s.events.PublishPasswordResetRequested(ctx, event); pubErr != nil {
			s.logger.Warn("publish reset requested event", zap.Error(pubErr))
		}
	}

	s.logger.Info("password reset issued", zap.String("account_id", account.ID))
	return nil
}

// Reset completes the forgot flow with the emailed token. A successful reset
// also clears any open lockout so the owner regains access immediately.
func (s *PasswordService) Reset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrResetTokenInvalid
	}

	account, err := s.accounts.GetByResetTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}
	if account.Status == domain.AccountStatusBlocked {
		return ErrAccountBlocked
	}
	if account.ResetExpiresAt == nil || s.now().UTC().After(*account.ResetExpiresAt) {
		return ErrResetTokenExpired
	}

	if err := s.applyNewPassword(ctx, account, newPassword, domain.ActivityPasswordReset); err != nil {
		return err
	}

	return s.afterRotation(ctx, account, "reset")
}

// applyNewPassword runs the shared checks (same-password, strength policy,
// reuse window) and persists the rotation.
func (s *PasswordService) applyNewPassword(ctx context.Context, account *domain.Account, newPassword, action string) error {
	if account.HasPassword() {
		same, err := s.hasher.Verify(newPassword, *account.PasswordHash)
		if err != nil {
			return fmt.Errorf("compare password: %w", err)
		}
		if same {
			return ErrSamePassword
		}
	}

	if err := s.policy.Validate(newPassword, account.Email); err != nil {
		return err
	}

	historyLimit := s.cfg.Account.PasswordHistoryLimit
	if historyLimit <= 0 {
		historyLimit = 3
	}

	history, err := s.accounts.ListPasswordHistory(ctx, account.ID, historyLimit)
	if err != nil {
		return fmt.Errorf("list password history: %w", err)
	}
	for _, entry := range history {
		used, err := s.hasher.Verify(newPassword, entry.PasswordHash)
		if err != nil {
			return fmt.Errorf("compare history entry: %w", err)
		}
		if used {
			return ErrPasswordReused
		}
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	activity := domain.ActivityRecord{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Action:    action,
		CreatedAt: now,
	}

	if err := s.accounts.RotatePassword(ctx, account.ID, newHash, now, historyLimit, activity); err != nil {
		return fmt.Errorf("rotate password: %w", err)
	}

	account.PasswordHash = &newHash
	account.LastPasswordChange = now
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.ResetTokenHash = nil
	account.ResetExpiresAt = nil

	return nil
}

// afterRotation revokes every open session and publishes the change event.
func (s *PasswordService) afterRotation(ctx context.Context, account *domain.Account, changedBy string) error {
	var revoked int64
	if s.tokens != nil {
		var err error
		revoked, err = s.tokens.RevokeAll(ctx, account.ID, "password "+changedBy)
		if err != nil {
			s.logger.Warn("revoke sessions after rotation", zap.Error(err))
		}
	}

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:       uuid.NewString(),
			AccountID:     account.ID,
			ChangedAt:     s.now().UTC(),
			ChangedBy:     changedBy,
			TokensRevoked: int(revoked),
		}
		if pubErr := s.events.PublishPasswordChanged(ctx, event); pubErr != nil {
			s.logger.Warn("publish password changed event", zap.Error(pubErr))
		}
	}

	s.logger.Info("password rotated",
		zap.String("account_id", account.ID),
		zap.String("changed_by", changedBy),
	)
	return nil
}

func (s *PasswordService) resetThrottled(ctx context.Context, email string, now time.Time) (bool, error) {
	if s.rateLimits == nil {
		return false, nil
	}

	window := s.cfg.RateLimit.ForgotPasswordWindow
	if window <= 0 {
		window = time.Hour
	}
	max := s.cfg.RateLimit.ForgotPasswordMaxAttempts
	if max <= 0 {
		max = 3
	}

	identifier := "password_reset:" + security.HashToken(email)

	if err := s.rateLimits.TrimWindow(ctx, identifier, window, now); err != nil {
		return false, fmt.Errorf("trim rate limit window: %w", err)
	}
	count, err := s.rateLimits.CountAttempts(ctx, identifier, window, now)
	if err != nil {
		return false, fmt.Errorf("count rate limit attempts: %w", err)
	}
	if count >= max {
		return true, nil
	}
	if err := s.rateLimits.RecordAttempt(ctx, identifier, now); err != nil {
		return false, fmt.Errorf("record rate limit attempt: %w", err)
	}

	return false, nil
}
