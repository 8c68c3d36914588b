package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
)

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	// An open session should not survive the rotation.
	if _, err := f.tokenSvc.IssuePair(ctx, account, false, "", SessionMetadata{}); err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	const newPassword = "BlueHarbor!77"
	if err := f.passwords.Change(ctx, account.ID, testPassword, newPassword); err != nil {
		t.Fatalf("change password: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if row.PasswordHash == nil || *row.PasswordHash != testHash(newPassword) {
		t.Fatal("password hash was not rotated")
	}
	if !row.LastPasswordChange.Equal(f.clock.Now().UTC()) {
		t.Fatalf("last change = %v, want %v", row.LastPasswordChange, f.clock.Now().UTC())
	}

	if f.tokens.liveTokens(account.ID) != 0 {
		t.Fatal("sessions should be revoked after a password change")
	}
	if len(f.events.pwChanged) != 1 {
		t.Fatalf("password changed events = %d, want 1", len(f.events.pwChanged))
	}
	if f.events.pwChanged[0].ChangedBy != "change" {
		t.Fatalf("changed by = %s, want change", f.events.pwChanged[0].ChangedBy)
	}

	// The new credential works immediately.
	if _, err := f.login.Login(ctx, LoginRequest{Email: account.Email, Password: newPassword}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	err := f.passwords.Change(context.Background(), account.ID, "wrong-guess", "BlueHarbor!77")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordSameAsCurrent(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	err := f.passwords.Change(context.Background(), account.ID, testPassword, testPassword)
	if !errors.Is(err, ErrSamePassword) {
		t.Fatalf("expected ErrSamePassword, got %v", err)
	}
}

func TestChangePasswordMinimumAge(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(func(a *domain.Account) {
		a.LastPasswordChange = f.clock.Now().Add(-time.Hour)
	})

	err := f.passwords.Change(context.Background(), account.ID, testPassword, "BlueHarbor!77")
	if !errors.Is(err, ErrPasswordTooRecent) {
		t.Fatalf("expected ErrPasswordTooRecent, got %v", err)
	}
}

func TestChangePasswordRejectsWeak(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	err := f.passwords.Change(context.Background(), account.ID, testPassword, "qwerty123")
	var policyErr *security.PasswordValidationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected a policy violation, got %v", err)
	}
}

func TestChangePasswordReuseWindow(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	first := testPassword
	passwords := []string{"BlueHarbor!77", "GreenSummit!88", "RedCanyon!99"}
	for _, next := range passwords {
		f.clock.Advance(25 * time.Hour)
		if err := f.passwords.Change(ctx, account.ID, first, next); err != nil {
			t.Fatalf("change to %s: %v", next, err)
		}
		first = next
	}

	// The history window still holds the last three hashes.
	f.clock.Advance(25 * time.Hour)
	err := f.passwords.Change(ctx, account.ID, first, "GreenSummit!88")
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}

	// The original password has aged out of the three-entry window.
	if err := f.passwords.Change(ctx, account.ID, first, testPassword); err != nil {
		t.Fatalf("reusing a password outside the window: %v", err)
	}
}

func TestForgotPasswordIssuesToken(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	if err := f.passwords.Forgot(context.Background(), account.Email, "203.0.113.9"); err != nil {
		t.Fatalf("forgot: %v", err)
	}

	token := f.mailer.lastReset(t)
	row := f.accounts.stored(t, account.ID)
	if row.ResetTokenHash == nil || *row.ResetTokenHash != security.HashToken(token) {
		t.Fatal("reset token hash not stored")
	}
	if row.ResetExpiresAt == nil {
		t.Fatal("reset expiry not stored")
	}
	if len(f.events.resetRequested) != 1 {
		t.Fatalf("reset requested events = %d, want 1", len(f.events.resetRequested))
	}
}

func TestForgotPasswordUnknownEmailSilent(t *testing.T) {
	f := newFixture(t)

	if err := f.passwords.Forgot(context.Background(), "nobody@example.com", ""); err != nil {
		t.Fatalf("forgot for unknown email must not error: %v", err)
	}
	if len(f.mailer.resets) != 0 {
		t.Fatal("no reset email may be sent for an unknown address")
	}
}

func TestForgotPasswordMailFailureStaysSilent(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	f.mailer.failWith(errors.New("smtp connection refused"))

	// A delivery failure only happens for addresses that exist, so letting
	// it surface would distinguish known emails from unknown ones.
	if err := f.passwords.Forgot(context.Background(), account.Email, ""); err != nil {
		t.Fatalf("forgot must swallow mailer failures: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if row.ResetTokenHash == nil {
		t.Fatal("reset token should still be stored for a later resend")
	}
}

func TestForgotPasswordThrottled(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	limit := f.cfg.RateLimit.ForgotPasswordMaxAttempts
	for i := 0; i < limit; i++ {
		if err := f.passwords.Forgot(ctx, account.Email, ""); err != nil {
			t.Fatalf("forgot %d: %v", i, err)
		}
	}
	if len(f.mailer.resets) != limit {
		t.Fatalf("reset emails = %d, want %d", len(f.mailer.resets), limit)
	}

	// Over budget: still success-shaped, but no email goes out.
	if err := f.passwords.Forgot(ctx, account.Email, ""); err != nil {
		t.Fatalf("throttled forgot must not error: %v", err)
	}
	if len(f.mailer.resets) != limit {
		t.Fatalf("reset emails after throttle = %d, want %d", len(f.mailer.resets), limit)
	}

	// The budget refills once the window slides past.
	f.clock.Advance(f.cfg.RateLimit.ForgotPasswordWindow + time.Minute)
	if err := f.passwords.Forgot(ctx, account.Email, ""); err != nil {
		t.Fatalf("forgot after window: %v", err)
	}
	if len(f.mailer.resets) != limit+1 {
		t.Fatalf("reset emails after window = %d, want %d", len(f.mailer.resets), limit+1)
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	until := f.clock.Now().Add(10 * time.Minute)
	account := f.seedAccount(func(a *domain.Account) {
		a.FailedAttempts = 3
		a.LockedUntil = &until
	})
	ctx := context.Background()

	if _, err := f.tokenSvc.IssuePair(ctx, account, false, "", SessionMetadata{}); err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if err := f.passwords.Forgot(ctx, account.Email, ""); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := f.mailer.lastReset(t)

	const newPassword = "BlueHarbor!77"
	if err := f.passwords.Reset(ctx, token, newPassword); err != nil {
		t.Fatalf("reset: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if *row.PasswordHash != testHash(newPassword) {
		t.Fatal("password hash was not rotated")
	}
	if row.FailedAttempts != 0 || row.LockedUntil != nil {
		t.Fatal("a successful reset should clear the lockout")
	}
	if row.ResetTokenHash != nil || row.ResetExpiresAt != nil {
		t.Fatal("the reset token should be consumed")
	}
	if f.tokens.liveTokens(account.ID) != 0 {
		t.Fatal("sessions should be revoked after a reset")
	}

	// The consumed token cannot be replayed.
	if err := f.passwords.Reset(ctx, token, "GreenSummit!88"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid on replay, got %v", err)
	}
}

func TestResetPasswordInvalidToken(t *testing.T) {
	f := newFixture(t)
	f.seedAccount()

	err := f.passwords.Reset(context.Background(), "never-issued", "BlueHarbor!77")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	if err := f.passwords.Forgot(ctx, account.Email, ""); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := f.mailer.lastReset(t)

	f.clock.Advance(f.cfg.Account.ResetTokenTTL + time.Minute)

	err := f.passwords.Reset(ctx, token, "BlueHarbor!77")
	if !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired, got %v", err)
	}
}

func TestForgotPasswordSkipsBlockedAccount(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(func(a *domain.Account) {
		a.Status = domain.AccountStatusBlocked
	})

	if err := f.passwords.Forgot(context.Background(), account.Email, ""); err != nil {
		t.Fatalf("forgot for blocked account must not error: %v", err)
	}
	if len(f.mailer.resets) != 0 {
		t.Fatal("no reset email may be sent to a blocked account")
	}
}
