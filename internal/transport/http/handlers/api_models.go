package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary describes a minimal view of an account returned by the API.
type AccountSummary struct {
	ID               string               `json:"id"`
	Email            string               `json:"email"`
	Role             string               `json:"role"`
	Status           domain.AccountStatus `json:"status"`
	IsVerified       bool                 `json:"is_verified"`
	TwoFactorEnabled bool                 `json:"two_factor_enabled"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	Account      AccountSummary `json:"account"`
}

// TwoFactorPendingResponse is returned when a login requires a mailed code to finish.
type TwoFactorPendingResponse struct {
	Message           string `json:"message"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	ContinuationToken string `json:"continuation_token"`
}

// TwoFactorVerifyRequest completes a pending two-factor login.
type TwoFactorVerifyRequest struct {
	ContinuationToken string `json:"continuation_token" binding:"required"`
	Code              string `json:"code" binding:"required"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains tokens issued by the refresh endpoint.
type TokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// LogoutRequest revokes a single refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse summarises a bulk session revocation.
type LogoutAllResponse struct {
	Message       string `json:"message"`
	TokensRevoked int64  `json:"tokens_revoked"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=8"`
	TermsAccepted bool   `json:"terms_accepted"`
}

// RegistrationResponse contains registration results and next steps.
type RegistrationResponse struct {
	Account              AccountSummary `json:"account"`
	RequiresVerification bool           `json:"requires_verification"`
	Message              string         `json:"message,omitempty"`
}

// EmailVerifyRequest holds the email verification payload.
type EmailVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResendVerificationRequest asks for a fresh verification mail.
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordForgotRequest represents a password reset initiation payload.
type PasswordForgotRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetRequest captures a password reset confirmation payload.
type PasswordResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// TwoFactorConfirmRequest carries the emailed code during enrollment.
type TwoFactorConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorDisableRequest requires password re-verification to turn the factor off.
type TwoFactorDisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newAccountSummary converts a domain account to a summary suitable for API responses.
func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:               account.ID,
		Email:            account.Email,
		Role:             account.Role,
		Status:           account.Status,
		IsVerified:       account.IsVerified,
		TwoFactorEnabled: account.TwoFactorEnabled,
	}
}
