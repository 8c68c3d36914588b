package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
)

func TestTwoFactorEnrollment(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	if err := f.twoFactor.BeginEnrollment(ctx, account.ID); err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	code := f.mailer.lastCode(t)

	if err := f.twoFactor.ConfirmEnrollment(ctx, account.ID, code); err != nil {
		t.Fatalf("confirm enrollment: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if !row.TwoFactorEnabled {
		t.Fatal("two-factor should be enabled after confirmation")
	}
	if row.TwoFactorCodeHash != nil {
		t.Fatal("the confirmation code should be consumed")
	}

	// Logins now require the challenge hop.
	result, err := f.login.Login(ctx, LoginRequest{Email: account.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("login should require two-factor after enrollment")
	}
}

func TestTwoFactorEnrollTwice(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(func(a *domain.Account) {
		a.TwoFactorEnabled = true
	})

	err := f.twoFactor.BeginEnrollment(context.Background(), account.ID)
	if !errors.Is(err, ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected ErrTwoFactorAlreadyEnabled, got %v", err)
	}
}

func TestTwoFactorConfirmWrongCode(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()
	ctx := context.Background()

	if err := f.twoFactor.BeginEnrollment(ctx, account.ID); err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}

	if err := f.twoFactor.ConfirmEnrollment(ctx, account.ID, "000000"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if row.TwoFactorEnabled {
		t.Fatal("a failed confirmation must not enable two-factor")
	}
}

func TestTwoFactorConfirmWithoutChallenge(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	err := f.twoFactor.ConfirmEnrollment(context.Background(), account.ID, "123456")
	if !errors.Is(err, ErrTwoFactorNotPending) {
		t.Fatalf("expected ErrTwoFactorNotPending, got %v", err)
	}
}

func TestTwoFactorDisable(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount(func(a *domain.Account) {
		a.TwoFactorEnabled = true
	})
	ctx := context.Background()

	// The wrong password is rejected before anything changes.
	if err := f.twoFactor.Disable(ctx, account.ID, "wrong-guess"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !f.accounts.stored(t, account.ID).TwoFactorEnabled {
		t.Fatal("a rejected disable must not switch two-factor off")
	}

	if err := f.twoFactor.Disable(ctx, account.ID, testPassword); err != nil {
		t.Fatalf("disable: %v", err)
	}

	row := f.accounts.stored(t, account.ID)
	if row.TwoFactorEnabled {
		t.Fatal("two-factor should be disabled")
	}
	if row.TwoFactorCodeHash != nil {
		t.Fatal("any pending challenge should be cleared")
	}
}

func TestTwoFactorDisableWhenNotEnabled(t *testing.T) {
	f := newFixture(t)
	account := f.seedAccount()

	err := f.twoFactor.Disable(context.Background(), account.ID, testPassword)
	if !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}
