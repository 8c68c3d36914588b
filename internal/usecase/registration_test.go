package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
)

func TestRegisterCreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.registration.Register(ctx, RegisterRequest{
		Name:          "Pat Customer",
		Email:         "Pat@Example.com",
		Password:      testPassword,
		TermsAccepted: true,
		IP:            "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Email != "pat@example.com" {
		t.Fatalf("email = %s, want lowercased pat@example.com", account.Email)
	}
	if account.PasswordHash != nil {
		t.Fatal("returned account must not expose the password hash")
	}
	if account.Role != domain.RoleCustomer {
		t.Fatalf("role = %s, want %s", account.Role, domain.RoleCustomer)
	}

	row := f.accounts.stored(t, account.ID)
	if row.PasswordHash == nil || *row.PasswordHash != testHash(testPassword) {
		t.Fatal("stored account should carry the hashed credential")
	}
	if row.IsVerified {
		t.Fatal("a fresh account starts unverified")
	}

	if len(f.events.registered) != 1 {
		t.Fatalf("registered events = %d, want 1", len(f.events.registered))
	}
	if len(f.mailer.verifications) != 1 {
		t.Fatalf("verification emails = %d, want 1", len(f.mailer.verifications))
	}
	if f.mailer.verifications[0].To != "pat@example.com" {
		t.Fatalf("verification sent to %s", f.mailer.verifications[0].To)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.seedAccount()

	_, err := f.registration.Register(context.Background(), RegisterRequest{
		Name:          "Second Shopper",
		Email:         "shopper@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterDeletedEmailStaysReserved(t *testing.T) {
	f := newFixture(t)
	deletedAt := f.clock.Now().Add(-time.Hour)
	f.seedAccount(func(a *domain.Account) {
		a.DeletedAt = &deletedAt
	})

	_, err := f.registration.Register(context.Background(), RegisterRequest{
		Name:          "Second Shopper",
		Email:         "shopper@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for a soft-deleted email, got %v", err)
	}

	// With the policy flag on, the address becomes usable again.
	f.cfg.Account.AllowReregisterDeleted = true
	if _, err := f.registration.Register(context.Background(), RegisterRequest{
		Name:          "Second Shopper",
		Email:         "shopper@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	}); err != nil {
		t.Fatalf("register over deleted email with flag on: %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.registration.Register(context.Background(), RegisterRequest{
		Name:          "Pat Customer",
		Email:         "pat@example.com",
		Password:      "qwerty123",
		TermsAccepted: true,
	})
	var policyErr *security.PasswordValidationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected a policy violation, got %v", err)
	}
}

func TestRegisterRequiresTerms(t *testing.T) {
	f := newFixture(t)

	_, err := f.registration.Register(context.Background(), RegisterRequest{
		Name:     "Pat Customer",
		Email:    "pat@example.com",
		Password: testPassword,
	})
	if err == nil {
		t.Fatal("registration without accepted terms must fail")
	}
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.registration.Register(ctx, RegisterRequest{
		Name:          "Pat Customer",
		Email:         "pat@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token := f.mailer.lastVerification(t)

	if err := f.registration.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if !row.IsVerified {
		t.Fatal("account should be verified")
	}

	// One-shot token: the second redemption fails.
	if err := f.registration.VerifyEmail(ctx, token); !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("expected ErrVerificationTokenInvalid on replay, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.registration.Register(ctx, RegisterRequest{
		Name:          "Pat Customer",
		Email:         "pat@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := f.mailer.lastVerification(t)

	f.clock.Advance(f.cfg.Account.VerificationTokenTTL + time.Minute)

	if err := f.registration.VerifyEmail(ctx, token); !errors.Is(err, ErrVerificationTokenExpired) {
		t.Fatalf("expected ErrVerificationTokenExpired, got %v", err)
	}
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	f := newFixture(t)

	if err := f.registration.VerifyEmail(context.Background(), "never-issued"); !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("expected ErrVerificationTokenInvalid, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(func(a *domain.Account) {
		a.IsVerified = false
	})
	ctx := context.Background()

	if err := f.registration.ResendVerification(ctx, account.Email); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(f.mailer.verifications) != 1 {
		t.Fatalf("verification emails = %d, want 1", len(f.mailer.verifications))
	}

	// A fresh token from the resend still verifies.
	if err := f.registration.VerifyEmail(ctx, f.mailer.lastVerification(t)); err != nil {
		t.Fatalf("verify after resend: %v", err)
	}

	// Verified accounts and unknown addresses are silently ignored.
	if err := f.registration.ResendVerification(ctx, account.Email); err != nil {
		t.Fatalf("resend for verified account: %v", err)
	}
	if err := f.registration.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("resend for unknown email: %v", err)
	}
	if len(f.mailer.verifications) != 1 {
		t.Fatalf("verification emails = %d, want 1 after ignored resends", len(f.mailer.verifications))
	}
}

func TestRegisterUnverifiedLoginGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.registration.Register(ctx, RegisterRequest{
		Name:          "Pat Customer",
		Email:         "pat@example.com",
		Password:      testPassword,
		TermsAccepted: true,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Until the email is verified, login is refused.
	if _, err := f.login.Login(ctx, LoginRequest{Email: "pat@example.com", Password: testPassword}); !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got %v", err)
	}

	if err := f.registration.VerifyEmail(ctx, f.mailer.lastVerification(t)); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	result, err := f.login.Login(ctx, LoginRequest{Email: "pat@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login after verification: %v", err)
	}
	if result.Pair == nil {
		t.Fatal("expected a token pair")
	}
}
