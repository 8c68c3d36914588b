package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

// AccessTokenClaims augments registered claims with account context.
type AccessTokenClaims struct {
	AccountID string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues, rotates, and revokes token pairs. Access tokens are
// RS256 JWTs; refresh tokens are opaque random values stored hashed.
type TokenService struct {
	cfg         *config.AppConfig
	accounts    port.AccountRepository
	tokens      port.TokenRepository
	revocations port.RevocationStore
	events      port.EventPublisher
	keys        security.KeyProvider
	logger      *zap.Logger
	now         func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	tokens port.TokenRepository,
	revocations port.RevocationStore,
	events port.EventPublisher,
	keys security.KeyProvider,
	logger *zap.Logger,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		cfg:         cfg,
		accounts:    accounts,
		tokens:      tokens,
		revocations: revocations,
		events:      events,
		keys:        keys,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// SessionMetadata carries request attribution persisted with refresh tokens.
type SessionMetadata struct {
	IP        string
	UserAgent string
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IssuePair mints an access token and a fresh refresh token for the account.
// An empty familyID starts a new token family; rotation passes the existing one.
func (s *TokenService) IssuePair(ctx context.Context, account domain.Account, rememberMe bool, familyID string, meta SessionMetadata) (*domain.TokenPair, error) {
	if account.ID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	now := s.now().UTC()

	access, accessExpires, err := s.signAccessToken(account, now)
	if err != nil {
		return nil, err
	}

	refreshTTL := s.cfg.JWT.RefreshTokenTTL
	if rememberMe && s.cfg.JWT.RememberMeTTL > 0 {
		refreshTTL = s.cfg.JWT.RememberMeTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = 168 * time.Hour
	}

	size := s.cfg.JWT.RefreshTokenSize
	if size <= 0 {
		size = 32
	}
	refreshValue, err := security.GenerateSecureToken(size)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if familyID == "" {
		familyID = uuid.NewString()
	}

	record := domain.RefreshToken{
		ID:         uuid.NewString(),
		AccountID:  account.ID,
		TokenHash:  security.HashToken(refreshValue),
		FamilyID:   familyID,
		RememberMe: rememberMe,
		IP:         optionalString(meta.IP),
		UserAgent:  optionalString(meta.UserAgent),
		CreatedAt:  now,
		ExpiresAt:  now.Add(refreshTTL),
	}
	if err := s.tokens.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshValue,
		AccessExpiresAt:  accessExpires,
		RefreshExpiresAt: record.ExpiresAt,
		RefreshTokenID:   record.ID,
		FamilyID:         familyID,
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued within the same family. Presenting an already-consumed token
// is treated as theft and revokes every descendant of the original issuance.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string, meta SessionMetadata) (*domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	tokenHash := security.HashToken(refreshToken)

	// Fast path: tokens revoked through logout or theft handling sit in the
	// cache until their row would have expired anyway.
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, tokenHash)
		if err != nil {
			s.logger.Warn("check revocation cache", zap.Error(err))
		} else if revoked {
			return nil, ErrInvalidRefreshToken
		}
	}

	record, err := s.tokens.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := s.now().UTC()

	if record.IsRevoked() {
		return nil, ErrInvalidRefreshToken
	}
	if record.IsExpired(now) {
		// An expired token presented for rotation is dead either way.
		// Mark the row revoked so later sweeps and audits see it closed.
		if err := s.tokens.RevokeRefreshToken(ctx, record.ID, now); err != nil {
			s.logger.Warn("revoke expired refresh token", zap.Error(err))
		}
		return nil, ErrExpiredRefreshToken
	}
	if record.UsedAt != nil {
		return nil, s.handleReuse(ctx, record, now)
	}

	won, err := s.tokens.MarkRefreshTokenUsed(ctx, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !won {
		// Another rotation consumed this token between the read and the
		// compare-and-set. Same treatment as replay of a spent token.
		return nil, s.handleReuse(ctx, record, now)
	}

	account, err := s.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account.Status == domain.AccountStatusBlocked {
		return nil, ErrAccountBlocked
	}

	pair, err := s.IssuePair(ctx, *account, record.RememberMe, record.FamilyID, meta)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("refresh token rotated",
		zap.String("account_id", record.AccountID),
		zap.String("family_id", record.FamilyID),
	)

	return pair, nil
}

func (s *TokenService) handleReuse(ctx context.Context, record *domain.RefreshToken, now time.Time) error {
	revoked, err := s.tokens.RevokeFamily(ctx, record.FamilyID, now)
	if err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}

	if s.revocations != nil {
		if ttl := record.ExpiresAt.Sub(now); ttl > 0 {
			if cacheErr := s.revocations.MarkRevoked(ctx, record.TokenHash, ttl); cacheErr != nil {
				s.logger.Warn("mark revoked token in cache", zap.Error(cacheErr))
			}
		}
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("account_id", record.AccountID),
		zap.String("family_id", record.FamilyID),
		zap.Int64("tokens_revoked", revoked),
	)

	if s.events != nil {
		event := domain.TokenFamilyRevokedEvent{
			EventID:       uuid.NewString(),
			AccountID:     record.AccountID,
			FamilyID:      record.FamilyID,
			TokensRevoked: int(revoked),
			Reason:        "refresh token reuse",
			RevokedAt:     now,
		}
		if pubErr := s.events.PublishTokenFamilyRevoked(ctx, event); pubErr != nil {
			s.logger.Warn("publish token family revoked event", zap.Error(pubErr))
		}
	}

	return ErrRefreshTokenReused
}

// Revoke ends the session owning the presented refresh token.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}

	record, err := s.tokens.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	now := s.now().UTC()
	if err := s.tokens.RevokeRefreshToken(ctx, record.ID, now); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	if s.revocations != nil {
		if ttl := record.ExpiresAt.Sub(now); ttl > 0 {
			if cacheErr := s.revocations.MarkRevoked(ctx, record.TokenHash, ttl); cacheErr != nil {
				s.logger.Warn("mark revoked token in cache", zap.Error(cacheErr))
			}
		}
	}

	if s.events != nil {
		event := domain.SessionRevokedEvent{
			EventID:       uuid.NewString(),
			AccountID:     record.AccountID,
			TokenID:       record.ID,
			RevokedBy:     record.AccountID,
			Reason:        "logout",
			TokensRevoked: 1,
			RevokedAt:     now,
		}
		if pubErr := s.events.PublishSessionRevoked(ctx, event); pubErr != nil {
			s.logger.Warn("publish session revoked event", zap.Error(pubErr))
		}
	}

	if s.accounts != nil {
		activity := domain.ActivityRecord{
			ID:        uuid.NewString(),
			AccountID: record.AccountID,
			Action:    domain.ActivityLogout,
			CreatedAt: now,
		}
		if actErr := s.accounts.AppendActivity(ctx, activity); actErr != nil {
			s.logger.Warn("append logout activity", zap.Error(actErr))
		}
	}

	return nil
}

// RevokeAll ends every session belonging to the account.
func (s *TokenService) RevokeAll(ctx context.Context, accountID, reason string) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}
	if reason == "" {
		reason = "user requested"
	}

	now := s.now().UTC()
	revoked, err := s.tokens.RevokeAllForAccount(ctx, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}

	if s.events != nil {
		event := domain.SessionRevokedEvent{
			EventID:       uuid.NewString(),
			AccountID:     accountID,
			RevokedBy:     accountID,
			Reason:        reason,
			TokensRevoked: int(revoked),
			RevokedAt:     now,
		}
		if pubErr := s.events.PublishSessionRevoked(ctx, event); pubErr != nil {
			s.logger.Warn("publish session revoked event", zap.Error(pubErr))
		}
	}

	if s.accounts != nil {
		activity := domain.ActivityRecord{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Action:    domain.ActivityLogoutAll,
			CreatedAt: now,
		}
		if actErr := s.accounts.AppendActivity(ctx, activity); actErr != nil {
			s.logger.Warn("append logout activity", zap.Error(actErr))
		}
	}

	return revoked, nil
}

// PurgeExpired deletes refresh token rows whose validity window has closed.
// Runs periodically in the background; revoked and used rows are kept until
// expiry so reuse detection can still name them.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpiredRefreshTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("expired refresh tokens purged", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (s *TokenService) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return s.keys.VerificationKey(kid)
	}, jwt.WithIssuer(s.cfg.App.Name), jwt.WithAudience(s.cfg.App.Name), jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (s *TokenService) signAccessToken(account domain.Account, now time.Time) (string, time.Time, error) {
	ttl := s.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expiresAt := now.Add(ttl)

	claimAudience := jwt.ClaimStrings{}
	if s.cfg.App.Name != "" {
		claimAudience = append(claimAudience, s.cfg.App.Name)
	}

	claims := AccessTokenClaims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.cfg.App.Name,
			Audience:  claimAudience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signingKey, kid, err := s.keys.SigningKey()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}
