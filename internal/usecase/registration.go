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

const verificationTokenBytes = 32

// RegisterRequest carries the signup payload.
type RegisterRequest struct {
	Name          string
	Email         string
	Password      string
	TermsAccepted bool
	IP            string
	UserAgent     string
}

// RegistrationService creates accounts and runs email verification.
type RegistrationService struct {
	cfg      *config.AppConfig
	accounts port.AccountRepository
	tokens   port.TokenRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	events   port.EventPublisher
	mailer   port.MailDispatcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	tokens port.TokenRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	events port.EventPublisher,
	mailer port.MailDispatcher,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		cfg:      cfg,
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		policy:   policy,
		events:   events,
		mailer:   mailer,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates the account and mails a verification link. The account,
// its profile, the initial history entry, and the activity row commit
// together; a lost uniqueness race surfaces as ErrEmailTaken.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !req.TermsAccepted {
		return nil, fmt.Errorf("terms must be accepted")
	}

	taken, err := s.accounts.EmailInUse(ctx, email, false)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}
	if !s.cfg.Account.AllowReregisterDeleted {
		deleted, err := s.accounts.EmailInUse(ctx, email, true)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if deleted {
			return nil, ErrEmailTaken
		}
	}

	if err := s.policy.Validate(req.Password, email, name); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       &hash,
		Role:               domain.RoleCustomer,
		Status:             domain.AccountStatusActive,
		LastPasswordChange: now,
		TermsAccepted:      req.TermsAccepted,
		CreatedAt:          now,
	}
	profile := domain.Profile{
		AccountID: account.ID,
		Name:      name,
		CreatedAt: now,
	}
	activity := domain.ActivityRecord{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Action:        domain.ActivityRegister,
		IPAddress:     optionalString(req.IP),
		DeviceDetails: optionalString(req.UserAgent),
		CreatedAt:     now,
	}

	if err := s.accounts.Create(ctx, account, profile, activity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if err := s.issueVerification(ctx, account, now); err != nil {
		// The account exists; verification can be re-requested later.
		s.logger.Warn("issue verification token", zap.Error(err))
	}

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Email:        account.Email,
			RegisteredAt: now,
		}
		if pubErr := s.events.PublishAccountRegistered(ctx, event); pubErr != nil {
			s.logger.Warn("publish account registered event", zap.Error(pubErr))
		}
	}

	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)

	sanitized := account
	sanitized.PasswordHash = nil
	return &sanitized, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *RegistrationService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrVerificationTokenInvalid
	}

	record, err := s.tokens.GetVerificationTokenByHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}

	now := s.now().UTC()
	if record.UsedAt != nil {
		return ErrVerificationTokenInvalid
	}
	if record.IsExpired(now) {
		return ErrVerificationTokenExpired
	}

	if err := s.tokens.ConsumeVerificationToken(ctx, record.ID, now); err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	if err := s.accounts.MarkVerified(ctx, record.AccountID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	s.logger.Info("email verified", zap.String("account_id", record.AccountID))
	return nil
}

// ResendVerification issues a fresh verification token for an unverified account.
func (s *RegistrationService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if account.IsVerified || account.Status == domain.AccountStatusBlocked {
		return nil
	}

	return s.issueVerification(ctx, *account, s.now().UTC())
}

func (s *RegistrationService) issueVerification(ctx context.Context, account domain.Account, now time.Time) error {
	token, err := security.GenerateSecureToken(verificationTokenBytes)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}

	ttl := s.cfg.Account.VerificationTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	record := domain.VerificationToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: security.HashToken(token),
		Purpose:   "email_verification",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.CreateVerificationToken(ctx, record); err != nil {
		return fmt.Errorf("persist verification token: %w", err)
	}

	if err := s.mailer.SendVerificationEmail(ctx, account.Email, token); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}

	return nil
}
