package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	uuid "github.com/google/uuid"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/repository"
)

const testPassword = "OrangeRiver!42"

// testClock is a controllable time source shared by every service in a fixture.
type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// createTestKeyProvider creates a temporary RSA key pair and key provider for tests
func createTestKeyProvider(t *testing.T) security.KeyProvider {
	t.Helper()

	tmpDir := t.TempDir()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(filepath.Join(tmpDir, "private.pem"), privatePEM, 0o600); err != nil {
		t.Fatalf("failed to write private key: %v", err)
	}

	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&privateKey.PublicKey),
	})
	if err := os.WriteFile(filepath.Join(tmpDir, "public.pem"), publicPEM, 0o600); err != nil {
		t.Fatalf("failed to write public key: %v", err)
	}

	keyProvider, err := security.NewFileKeyProvider(tmpDir)
	if err != nil {
		t.Fatalf("failed to create key provider: %v", err)
	}

	return keyProvider
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name:    "ecommerce-auth",
			Env:     "development",
			Host:    "127.0.0.1",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		JWT: config.JWTSettings{
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  168 * time.Hour,
			RememberMeTTL:    720 * time.Hour,
			RefreshTokenSize: 32,
		},
		Account: config.AccountSettings{
			BcryptCost:           4,
			MaxFailedLogins:      3,
			LockoutDuration:      15 * time.Minute,
			PasswordHistoryLimit: 3,
			MinPasswordAge:       24 * time.Hour,
			ResetTokenTTL:        time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			RequireVerifiedEmail: true,
		},
		TwoFactor: config.TwoFactorSettings{
			CodeLength:      6,
			CodeTTL:         10 * time.Minute,
			ContinuationTTL: 10 * time.Minute,
		},
		RateLimit: config.RateLimitSettings{
			ForgotPasswordWindow:      time.Hour,
			ForgotPasswordMaxAttempts: 3,
		},
	}
}

// recordingHasher substitutes bcrypt with a reversible encoding so tests can
// seed hashes directly and count how often verification runs.
type recordingHasher struct {
	mu          sync.Mutex
	verifyCalls int
}

func (h *recordingHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (h *recordingHasher) Verify(password, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	return encoded == "hashed:"+password, nil
}

func (h *recordingHasher) VerifyCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls
}

func testHash(password string) string {
	return "hashed:" + password
}

type testPolicy struct {
	rejected map[string]bool
}

func (p *testPolicy) Validate(password string, _ ...string) error {
	if p.rejected[password] {
		return &security.PasswordValidationError{Code: "password_too_weak", Message: "password too weak"}
	}
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	history  map[string][]domain.PasswordHistoryEntry
	profiles map[string]domain.Profile
	activity []domain.ActivityRecord
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[string]*domain.Account),
		history:  make(map[string][]domain.PasswordHistoryEntry),
		profiles: make(map[string]domain.Profile),
	}
}

func (r *fakeAccountRepo) put(account domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := account
	r.accounts[account.ID] = &copy
	if account.PasswordHash != nil {
		r.history[account.ID] = append(r.history[account.ID], domain.PasswordHistoryEntry{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			PasswordHash: *account.PasswordHash,
			CreatedAt:    account.LastPasswordChange,
		})
	}
}

// stored returns the live repository row, bypassing the copy semantics of the
// lookup methods. Test assertions only.
func (r *fakeAccountRepo) stored(t *testing.T, id string) domain.Account {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		t.Fatalf("account %s not in repository", id)
	}
	return *account
}

func (r *fakeAccountRepo) Create(_ context.Context, account domain.Account, profile domain.Profile, activity domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email && existing.DeletedAt == nil {
			return repository.ErrDuplicate
		}
	}
	copy := account
	r.accounts[account.ID] = &copy
	r.profiles[account.ID] = profile
	if account.PasswordHash != nil {
		r.history[account.ID] = append(r.history[account.ID], domain.PasswordHistoryEntry{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			PasswordHash: *account.PasswordHash,
			CreatedAt:    account.CreatedAt,
		})
	}
	r.activity = append(r.activity, activity)
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	copy := *account
	return &copy, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email && account.DeletedAt == nil {
			copy := *account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) EmailInUse(_ context.Context, email string, includeDeleted bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email != email {
			continue
		}
		if account.DeletedAt == nil || includeDeleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) RecordFailedLogin(_ context.Context, accountID string, threshold int, lockFor time.Duration, activity domain.ActivityRecord) (port.FailedLoginResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return port.FailedLoginResult{}, repository.ErrNotFound
	}
	account.FailedAttempts++
	result := port.FailedLoginResult{Attempts: account.FailedAttempts}
	if account.FailedAttempts >= threshold {
		until := activity.CreatedAt.Add(lockFor)
		account.LockedUntil = &until
		result.LockedUntil = &until
	}
	r.activity = append(r.activity, activity)
	return result, nil
}

func (r *fakeAccountRepo) RecordSuccessfulLogin(_ context.Context, accountID string, at time.Time, activity domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &at
	r.activity = append(r.activity, activity)
	return nil
}

func (r *fakeAccountRepo) RotatePassword(_ context.Context, accountID string, newHash string, at time.Time, historyLimit int, activity domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = &newHash
	account.LastPasswordChange = at
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.ResetTokenHash = nil
	account.ResetExpiresAt = nil
	entries := append(r.history[accountID], domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		PasswordHash: newHash,
		CreatedAt:    at,
	})
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	r.history[accountID] = entries
	r.activity = append(r.activity, activity)
	return nil
}

func (r *fakeAccountRepo) ListPasswordHistory(_ context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[accountID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *fakeAccountRepo) SetTwoFactorChallenge(_ context.Context, accountID string, codeHash string, expiresAt time.Time, activity domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorCodeHash = &codeHash
	account.TwoFactorExpiresAt = &expiresAt
	r.activity = append(r.activity, activity)
	return nil
}

func (r *fakeAccountRepo) ClearTwoFactorChallenge(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorCodeHash = nil
	account.TwoFactorExpiresAt = nil
	return nil
}

func (r *fakeAccountRepo) SetTwoFactorEnabled(_ context.Context, accountID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorEnabled = enabled
	return nil
}

func (r *fakeAccountRepo) SetResetToken(_ context.Context, accountID string, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.ResetTokenHash = &tokenHash
	account.ResetExpiresAt = &expiresAt
	return nil
}

func (r *fakeAccountRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.ResetTokenHash != nil && *account.ResetTokenHash == tokenHash && account.DeletedAt == nil {
			copy := *account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) MarkVerified(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.IsVerified = true
	return nil
}

func (r *fakeAccountRepo) AppendActivity(_ context.Context, activity domain.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = append(r.activity, activity)
	return nil
}

func (r *fakeAccountRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.activity))
	for _, a := range r.activity {
		out = append(out, a.Action)
	}
	return out
}

type fakeTokenRepo struct {
	mu       sync.Mutex
	refresh  map[string]*domain.RefreshToken
	verified map[string]*domain.VerificationToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		refresh:  make(map[string]*domain.RefreshToken),
		verified: make(map[string]*domain.VerificationToken),
	}
}

func (r *fakeTokenRepo) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := token
	r.refresh[token.ID] = &copy
	return nil
}

func (r *fakeTokenRepo) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.refresh {
		if token.TokenHash == tokenHash {
			copy := *token
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) MarkRefreshTokenUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.refresh[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if token.UsedAt != nil || token.RevokedAt != nil {
		return false, nil
	}
	token.UsedAt = &usedAt
	return true, nil
}

func (r *fakeTokenRepo) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.refresh[id]
	if !ok {
		return repository.ErrNotFound
	}
	token.RevokedAt = &at
	return nil
}

func (r *fakeTokenRepo) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, token := range r.refresh {
		if token.FamilyID == familyID && token.RevokedAt == nil {
			token.RevokedAt = &at
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) RevokeAllForAccount(_ context.Context, accountID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, token := range r.refresh {
		if token.AccountID == accountID && token.RevokedAt == nil {
			token.RevokedAt = &at
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, token := range r.refresh {
		if token.ExpiresAt.Before(before) {
			delete(r.refresh, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) CreateVerificationToken(_ context.Context, token domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := token
	r.verified[token.ID] = &copy
	return nil
}

func (r *fakeTokenRepo) GetVerificationTokenByHash(_ context.Context, tokenHash string) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.verified {
		if token.TokenHash == tokenHash {
			copy := *token
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) ConsumeVerificationToken(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.verified[id]
	if !ok {
		return repository.ErrNotFound
	}
	token.UsedAt = &at
	return nil
}

func (r *fakeTokenRepo) storedRefresh(t *testing.T, id string) domain.RefreshToken {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.refresh[id]
	if !ok {
		t.Fatalf("refresh token %s not in repository", id)
	}
	return *token
}

func (r *fakeTokenRepo) liveTokens(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, token := range r.refresh {
		if token.AccountID == accountID && token.RevokedAt == nil {
			count++
		}
	}
	return count
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: make(map[string]time.Duration)}
}

func (s *fakeRevocations) MarkRevoked(_ context.Context, tokenHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenHash] = ttl
	return nil
}

func (s *fakeRevocations) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenHash]
	return ok, nil
}

type fakeEvents struct {
	mu             sync.Mutex
	registered     []domain.AccountRegisteredEvent
	locked         []domain.AccountLockedEvent
	loginSucceeded []domain.LoginEvent
	loginFailed    []domain.LoginEvent
	pwChanged      []domain.PasswordChangedEvent
	resetRequested []domain.PasswordResetRequestedEvent
	familyRevoked  []domain.TokenFamilyRevokedEvent
	sessionRevoked []domain.SessionRevokedEvent
}

func (e *fakeEvents) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return nil
}

func (e *fakeEvents) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = append(e.locked, event)
	return nil
}

func (e *fakeEvents) PublishLoginSucceeded(_ context.Context, event domain.LoginEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loginSucceeded = append(e.loginSucceeded, event)
	return nil
}

func (e *fakeEvents) PublishLoginFailed(_ context.Context, event domain.LoginEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loginFailed = append(e.loginFailed, event)
	return nil
}

func (e *fakeEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pwChanged = append(e.pwChanged, event)
	return nil
}

func (e *fakeEvents) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetRequested = append(e.resetRequested, event)
	return nil
}

func (e *fakeEvents) PublishTokenFamilyRevoked(_ context.Context, event domain.TokenFamilyRevokedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.familyRevoked = append(e.familyRevoked, event)
	return nil
}

func (e *fakeEvents) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionRevoked = append(e.sessionRevoked, event)
	return nil
}

type sentMail struct {
	To    string
	Value string
}

type fakeMailer struct {
	mu            sync.Mutex
	verifications []sentMail
	codes         []sentMail
	resets        []sentMail
	lockouts      []sentMail
	sendErr       error
}

// failWith makes every subsequent send return err.
func (m *fakeMailer) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, to string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.verifications = append(m.verifications, sentMail{To: to, Value: token})
	return nil
}

func (m *fakeMailer) SendTwoFactorCode(_ context.Context, to string, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.codes = append(m.codes, sentMail{To: to, Value: code})
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, to string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.resets = append(m.resets, sentMail{To: to, Value: token})
	return nil
}

func (m *fakeMailer) SendLockoutNotice(_ context.Context, to string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.lockouts = append(m.lockouts, sentMail{To: to, Value: fmt.Sprintf("%d", minutes)})
	return nil
}

func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("no two-factor code was sent")
	}
	return m.codes[len(m.codes)-1].Value
}

func (m *fakeMailer) lastReset(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		t.Fatal("no reset email was sent")
	}
	return m.resets[len(m.resets)-1].Value
}

func (m *fakeMailer) lastVerification(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verifications) == 0 {
		t.Fatal("no verification email was sent")
	}
	return m.verifications[len(m.verifications)-1].Value
}

type fakeRateLimit struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newFakeRateLimit() *fakeRateLimit {
	return &fakeRateLimit{attempts: make(map[string][]time.Time)}
}

func (s *fakeRateLimit) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := reference.Add(-window)
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	s.attempts[identifier] = kept
	return nil
}

func (s *fakeRateLimit) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := reference.Add(-window)
	count := 0
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *fakeRateLimit) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

func (s *fakeRateLimit) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) && (!found || at.Before(oldest)) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

// fixture wires every service against in-memory fakes sharing one clock.
type fixture struct {
	clock    *testClock
	cfg      *config.AppConfig
	accounts *fakeAccountRepo
	tokens   *fakeTokenRepo
	revoked  *fakeRevocations
	events   *fakeEvents
	mailer   *fakeMailer
	limits   *fakeRateLimit
	hasher   *recordingHasher
	policy   *testPolicy
	sealer   *security.ContinuationSealer

	tokenSvc     *TokenService
	lockout      *LockoutGuard
	twoFactor    *TwoFactorService
	login        *LoginService
	passwords    *PasswordService
	registration *RegistrationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:    newTestClock(),
		cfg:      testConfig(),
		accounts: newFakeAccountRepo(),
		tokens:   newFakeTokenRepo(),
		revoked:  newFakeRevocations(),
		events:   &fakeEvents{},
		mailer:   &fakeMailer{},
		limits:   newFakeRateLimit(),
		hasher:   &recordingHasher{},
		policy:   &testPolicy{rejected: map[string]bool{"password": true, "qwerty123": true}},
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sealer, err := security.NewContinuationSealer(key, f.cfg.TwoFactor.ContinuationTTL)
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}
	f.sealer = sealer.WithClock(f.clock.Now)

	keys := createTestKeyProvider(t)

	f.tokenSvc = NewTokenService(f.cfg, f.accounts, f.tokens, f.revoked, f.events, keys, nil).WithClock(f.clock.Now)
	f.lockout = NewLockoutGuard(f.cfg, f.accounts, f.events, f.mailer, nil).WithClock(f.clock.Now)
	f.twoFactor = NewTwoFactorService(f.cfg, f.accounts, f.mailer, f.hasher, nil).WithClock(f.clock.Now)
	f.login = NewLoginService(f.cfg, f.accounts, f.hasher, f.lockout, f.twoFactor, f.tokenSvc, f.sealer, f.events, nil).WithClock(f.clock.Now)
	f.passwords = NewPasswordService(f.cfg, f.accounts, f.tokenSvc, f.hasher, f.policy, f.limits, f.events, f.mailer, nil).WithClock(f.clock.Now)
	f.registration = NewRegistrationService(f.cfg, f.accounts, f.tokens, f.hasher, f.policy, f.events, f.mailer, nil).WithClock(f.clock.Now)

	return f
}

// seedAccount inserts a verified active account holding testPassword.
func (f *fixture) seedAccount(mutate ...func(*domain.Account)) domain.Account {
	hash := testHash(testPassword)
	account := domain.Account{
		ID:                 uuid.NewString(),
		Email:              "shopper@example.com",
		PasswordHash:       &hash,
		Role:               domain.RoleCustomer,
		Status:             domain.AccountStatusActive,
		IsVerified:         true,
		LastPasswordChange: f.clock.Now().Add(-30 * 24 * time.Hour),
		TermsAccepted:      true,
		CreatedAt:          f.clock.Now().Add(-60 * 24 * time.Hour),
	}
	for _, m := range mutate {
		m(&account)
	}
	f.accounts.put(account)
	return account
}
