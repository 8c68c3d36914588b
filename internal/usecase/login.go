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

// LoginRequest carries the credentials and request attribution for one attempt.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
	IP         string
	UserAgent  string
}

// LoginResult is either a finished session or a two-factor continuation.
// When TwoFactorRequired is set, Pair is nil and ContinuationToken must be
// presented together with the emailed code to finish the login.
type LoginResult struct {
	TwoFactorRequired bool
	ContinuationToken string
	Pair              *domain.TokenPair
	Account           *domain.Account
}

// LoginService drives the login state machine: credential check, lockout
// policy, optional two-factor hop, then token issuance.
type LoginService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	hasher    port.PasswordHasher
	lockout   *LockoutGuard
	twoFactor *TwoFactorService
	tokens    *TokenService
	sealer    *security.ContinuationSealer
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	lockout *LockoutGuard,
	twoFactor *TwoFactorService,
	tokens *TokenService,
	sealer *security.ContinuationSealer,
	events port.EventPublisher,
	log *zap.Logger,
) *LoginService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginService{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		lockout:   lockout,
		twoFactor: twoFactor,
		tokens:    tokens,
		sealer:    sealer,
		events:    events,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *LoginService) WithClock(now func() time.Time) *LoginService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login verifies credentials and either issues a token pair or hands back a
// two-factor continuation. Lockout is checked before the password so a locked
// account never reaches the hash comparison.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("login for unknown email", zap.String("email", logger.MaskEmail(email)))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if account.Status == domain.AccountStatusBlocked {
		return nil, ErrAccountBlocked
	}
	if err := s.lockout.Check(account); err != nil {
		return nil, err
	}
	if !account.HasPassword() {
		// Social-login accounts have no local password to check.
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(req.Password, *account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.failLogin(ctx, account, req)
	}

	if s.cfg.Account.RequireVerifiedEmail && !account.IsVerified {
		return nil, ErrAccountNotVerified
	}

	if account.TwoFactorEnabled {
		return s.beginTwoFactor(ctx, account, req)
	}

	return s.completeLogin(ctx, account, req.RememberMe, SessionMetadata{IP: req.IP, UserAgent: req.UserAgent})
}

// VerifyTwoFactor finishes a two-step login. The continuation token proves
// the password check already happened; the code proves mailbox control.
func (s *LoginService) VerifyTwoFactor(ctx context.Context, continuationToken, code, ip, userAgent string) (*LoginResult, error) {
	continuation, err := s.sealer.Open(continuationToken)
	if err != nil {
		return nil, ErrContinuationInvalid
	}

	account, err := s.accounts.GetByID(ctx, continuation.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrContinuationInvalid
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if account.Status == domain.AccountStatusBlocked {
		return nil, ErrAccountBlocked
	}
	if err := s.lockout.Check(account); err != nil {
		return nil, err
	}

	if err := s.twoFactor.VerifyChallenge(ctx, account, code); err != nil {
		// A replayed verify after the code was consumed must look like a
		// wrong guess, not reveal that a challenge already succeeded.
		if errors.Is(err, ErrTwoFactorNotPending) {
			return nil, ErrTwoFactorInvalid
		}
		return nil, err
	}

	return s.completeLogin(ctx, account, continuation.RememberMe, SessionMetadata{IP: ip, UserAgent: userAgent})
}

func (s *LoginService) beginTwoFactor(ctx context.Context, account *domain.Account, req LoginRequest) (*LoginResult, error) {
	if err := s.twoFactor.IssueChallenge(ctx, account); err != nil {
		return nil, err
	}

	token, err := s.sealer.Seal(security.LoginContinuation{
		AccountID:  account.ID,
		Email:      account.Email,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return nil, fmt.Errorf("seal continuation: %w", err)
	}

	s.logger.Info("two-factor challenge issued",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)

	return &LoginResult{TwoFactorRequired: true, ContinuationToken: token}, nil
}

func (s *LoginService) completeLogin(ctx context.Context, account *domain.Account, rememberMe bool, meta SessionMetadata) (*LoginResult, error) {
	if err := s.lockout.RecordSuccess(ctx, account, meta.IP, meta.UserAgent); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, *account, rememberMe, "", meta)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		event := domain.LoginEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Succeeded:  true,
			IPAddress:  optionalString(meta.IP),
			UserAgent:  optionalString(meta.UserAgent),
			OccurredAt: s.now().UTC(),
		}
		if pubErr := s.events.PublishLoginSucceeded(ctx, event); pubErr != nil {
			s.logger.Warn("publish login succeeded event", zap.Error(pubErr))
		}
	}

	s.logger.Info("login succeeded",
		zap.String("account_id", account.ID),
		zap.String("ip", logger.MaskIP(meta.IP)),
	)

	return &LoginResult{Pair: pair, Account: account}, nil
}

func (s *LoginService) failLogin(ctx context.Context, account *domain.Account, req LoginRequest) error {
	locked, err := s.lockout.RecordFailure(ctx, account, req.IP, req.UserAgent)
	if err != nil {
		return err
	}

	if s.events != nil {
		event := domain.LoginEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Succeeded:  false,
			Attempt:    account.FailedAttempts,
			IPAddress:  optionalString(req.IP),
			UserAgent:  optionalString(req.UserAgent),
			OccurredAt: s.now().UTC(),
		}
		if pubErr := s.events.PublishLoginFailed(ctx, event); pubErr != nil {
			s.logger.Warn("publish login failed event", zap.Error(pubErr))
		}
	}

	if locked {
		return &AccountLockedError{
			Until:     *account.LockedUntil,
			Remaining: account.LockRemaining(s.now().UTC()),
		}
	}
	return ErrInvalidCredentials
}
