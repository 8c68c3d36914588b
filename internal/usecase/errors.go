package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked indicates the account was administratively disabled.
	ErrAccountBlocked = errors.New("account is blocked")
	// ErrAccountNotVerified indicates the email address has not been confirmed yet.
	ErrAccountNotVerified = errors.New("account email not verified")
	// ErrEmailTaken indicates the email already belongs to an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTwoFactorInvalid indicates the submitted challenge code does not match.
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")
	// ErrTwoFactorExpired indicates the challenge outlived its window.
	ErrTwoFactorExpired = errors.New("two-factor code expired")
	// ErrTwoFactorNotPending indicates no challenge is outstanding for the account.
	ErrTwoFactorNotPending = errors.New("no two-factor challenge pending")
	// ErrContinuationInvalid indicates the login continuation token is malformed or expired.
	ErrContinuationInvalid = errors.New("login continuation invalid")
	// ErrInvalidRefreshToken indicates the refresh token does not exist or was revoked.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the refresh token has expired.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrRefreshTokenReused indicates a rotated-out token was presented again.
	// The whole token family is revoked when this is observed.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")
	// ErrInvalidAccessToken indicates the access token is malformed or its signature failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrPasswordReused indicates the candidate password matches a recent one.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPasswordTooRecent indicates the current password is younger than the minimum age.
	ErrPasswordTooRecent = errors.New("password changed too recently")
	// ErrSamePassword indicates the candidate equals the current password.
	ErrSamePassword = errors.New("new password must differ from current password")
	// ErrResetTokenInvalid indicates the password reset token does not match any account.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetTokenExpired indicates the password reset token outlived its window.
	ErrResetTokenExpired = errors.New("reset token expired")
	// ErrVerificationTokenInvalid indicates the email verification token is unknown or consumed.
	ErrVerificationTokenInvalid = errors.New("verification token invalid")
	// ErrVerificationTokenExpired indicates the email verification token outlived its window.
	ErrVerificationTokenExpired = errors.New("verification token expired")
	// ErrTwoFactorAlreadyEnabled indicates enrollment was attempted twice.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled indicates the account has no two-factor enrollment.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
)

// AccountLockedError carries the remaining lockout window so handlers can
// surface a retry hint without another repository read.
type AccountLockedError struct {
	Until     time.Time
	Remaining time.Duration
}

// Error implements error.
func (e *AccountLockedError) Error() string {
	minutes := int(e.Remaining.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account locked, try again in %d minutes", minutes)
}

// ErrAccountLocked matches any AccountLockedError via errors.Is.
var ErrAccountLocked = errors.New("account locked")

// Is lets errors.Is(err, ErrAccountLocked) match regardless of the window.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
