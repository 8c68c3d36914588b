package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

// TwoFactorService issues and verifies email challenge codes and manages
// enrollment. Codes are stored hashed on the account row and cleared only on
// successful verification or after expiry; a wrong guess does not invalidate
// an unexpired code.
type TwoFactorService struct {
	cfg      *config.AppConfig
	accounts port.AccountRepository
	mailer   port.MailDispatcher
	hasher   port.PasswordHasher
	logger   *zap.Logger
	now      func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService.
func NewTwoFactorService(cfg *config.AppConfig, accounts port.AccountRepository, mailer port.MailDispatcher, hasher port.PasswordHasher, logger *zap.Logger) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoFactorService{
		cfg:      cfg,
		accounts: accounts,
		mailer:   mailer,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *TwoFactorService) WithClock(now func() time.Time) *TwoFactorService {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueChallenge generates a fresh code, stores its hash with the expiry, and
// emails the clear value. A previously pending code is overwritten.
func (s *TwoFactorService) IssueChallenge(ctx context.Context, account *domain.Account) error {
	length := s.cfg.TwoFactor.CodeLength
	if length <= 0 {
		length = 6
	}
	ttl := s.cfg.TwoFactor.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	code, err := security.GenerateNumericCode(length)
	if err != nil {
		return fmt.Errorf("generate challenge code: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	activity := domain.ActivityRecord{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Action:    domain.ActivityTwoFactorIssued,
		CreatedAt: now,
	}

	hash := security.HashToken(code)
	if err := s.accounts.SetTwoFactorChallenge(ctx, account.ID, hash, expiresAt, activity); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	account.TwoFactorCodeHash = &hash
	account.TwoFactorExpiresAt = &expiresAt

	if err := s.mailer.SendTwoFactorCode(ctx, account.Email, code); err != nil {
		return fmt.Errorf("send challenge code: %w", err)
	}

	return nil
}

// VerifyChallenge checks the submitted code against the pending challenge.
// Success consumes the code; expiry clears it; a mismatch leaves it pending.
func (s *TwoFactorService) VerifyChallenge(ctx context.Context, account *domain.Account, code string) error {
	if account.TwoFactorCodeHash == nil || account.TwoFactorExpiresAt == nil {
		return ErrTwoFactorNotPending
	}

	now := s.now().UTC()
	if now.After(*account.TwoFactorExpiresAt) {
		if err := s.accounts.ClearTwoFactorChallenge(ctx, account.ID); err != nil {
			s.logger.Warn("clear expired challenge", zap.Error(err))
		}
		account.TwoFactorCodeHash = nil
		account.TwoFactorExpiresAt = nil
		return ErrTwoFactorExpired
	}

	submitted := security.HashToken(code)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(*account.TwoFactorCodeHash)) != 1 {
		return ErrTwoFactorInvalid
	}

	if err := s.accounts.ClearTwoFactorChallenge(ctx, account.ID); err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	account.TwoFactorCodeHash = nil
	account.TwoFactorExpiresAt = nil

	return nil
}

// BeginEnrollment starts two-factor enrollment by issuing a confirmation code.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}

	return s.IssueChallenge(ctx, account)
}

// ConfirmEnrollment verifies the confirmation code and switches the account
// to two-factor logins.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, code string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}

	if err := s.VerifyChallenge(ctx, account, code); err != nil {
		return err
	}

	if err := s.accounts.SetTwoFactorEnabled(ctx, account.ID, true); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	s.logger.Info("two-factor enabled", zap.String("account_id", account.ID))
	return nil
}

// Disable turns two-factor logins off after re-verifying the password.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !account.HasPassword() {
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, *account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.accounts.SetTwoFactorEnabled(ctx, account.ID, false); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	if err := s.accounts.ClearTwoFactorChallenge(ctx, account.ID); err != nil {
		s.logger.Warn("clear pending challenge", zap.Error(err))
	}

	s.logger.Info("two-factor disabled", zap.String("account_id", account.ID))
	return nil
}

func (s *TwoFactorService) getAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account.Status == domain.AccountStatusBlocked {
		return nil, ErrAccountBlocked
	}
	return account, nil
}
