package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/middleware"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// PasswordHandler exposes the password lifecycle endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

var passwordRotationErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Kind: "invalid_credentials", Message: "current password is incorrect"},
	{Err: usecase.ErrSamePassword, Status: http.StatusBadRequest, Kind: "same_password", Message: "new password must differ from the current one"},
	{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Kind: "password_reused", Message: "password was used recently, choose a different one"},
	{Err: usecase.ErrPasswordTooRecent, Status: http.StatusBadRequest, Kind: "password_too_recent", Message: "password was changed too recently"},
	{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Kind: "reset_token_invalid", Message: "invalid reset token"},
	{Err: usecase.ErrResetTokenExpired, Status: http.StatusBadRequest, Kind: "reset_token_expired", Message: "reset token expired"},
	{Err: usecase.ErrAccountBlocked, Status: http.StatusForbidden, Kind: "account_blocked", Message: "account is blocked"},
}

// Forgot always returns the success shape so callers cannot probe for registered addresses.
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req PasswordForgotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	if err := h.passwords.Forgot(c.Request.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(c.ClientIP())); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process request"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the address is registered, a reset email has been sent"})
}

func (h *PasswordHandler) Reset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	err := h.passwords.Reset(c.Request.Context(), strings.TrimSpace(req.Token), req.NewPassword)
	if err != nil {
		if respondPolicyViolation(c, err) {
			return
		}
		RespondWithMappedError(c, err, passwordRotationErrorCases, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password has been reset, please sign in again"})
}

func (h *PasswordHandler) Change(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.passwords.Change(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if respondPolicyViolation(c, err) {
			return
		}
		RespondWithMappedError(c, err, passwordRotationErrorCases, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed, other sessions have been signed out"})
}

func respondPolicyViolation(c *gin.Context, err error) bool {
	var policyErr *security.PasswordValidationError
	if !errors.As(err, &policyErr) {
		return false
	}

	resp := NewErrorResponse(c, policyErr.Message)
	resp.Kind = policyErr.Code
	c.JSON(http.StatusBadRequest, resp)
	return true
}
