package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/middleware"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// TwoFactorHandler exposes enrollment endpoints for the emailed second factor.
type TwoFactorHandler struct {
	twoFactor *usecase.TwoFactorService
}

// NewTwoFactorHandler constructs TwoFactorHandler.
func NewTwoFactorHandler(twoFactor *usecase.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// RegisterRoutes binds two-factor enrollment routes. All of them require authentication.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/enable", h.enable)
	r.POST("/confirm", h.confirm)
	r.POST("/disable", h.disable)
}

var twoFactorEnrollmentErrorCases = []ErrorCase{
	{Err: usecase.ErrTwoFactorAlreadyEnabled, Status: http.StatusConflict, Kind: "two_factor_already_enabled", Message: "two-factor authentication is already enabled"},
	{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusConflict, Kind: "two_factor_not_enabled", Message: "two-factor authentication is not enabled"},
	{Err: usecase.ErrTwoFactorInvalid, Status: http.StatusBadRequest, Kind: "two_factor_invalid", Message: "invalid verification code"},
	{Err: usecase.ErrTwoFactorExpired, Status: http.StatusBadRequest, Kind: "two_factor_expired", Message: "verification code expired"},
	{Err: usecase.ErrTwoFactorNotPending, Status: http.StatusConflict, Kind: "two_factor_not_pending", Message: "no verification is pending"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Kind: "invalid_credentials", Message: "password is incorrect"},
}

func (h *TwoFactorHandler) enable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.twoFactor.BeginEnrollment(c.Request.Context(), accountID); err != nil {
		RespondWithMappedError(c, err, twoFactorEnrollmentErrorCases, http.StatusInternalServerError, "failed to start enrollment")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "a verification code has been sent to your email"})
}

func (h *TwoFactorHandler) confirm(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	if err := h.twoFactor.ConfirmEnrollment(c.Request.Context(), accountID, strings.TrimSpace(req.Code)); err != nil {
		RespondWithMappedError(c, err, twoFactorEnrollmentErrorCases, http.StatusInternalServerError, "failed to confirm enrollment")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication enabled"})
}

func (h *TwoFactorHandler) disable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password is required"))
		return
	}

	if err := h.twoFactor.Disable(c.Request.Context(), accountID, req.Password); err != nil {
		RespondWithMappedError(c, err, twoFactorEnrollmentErrorCases, http.StatusInternalServerError, "failed to disable two-factor authentication")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}
