package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// RegistrationHandler exposes account creation and email verification endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// RegisterRoutes binds registration routes, applying optional middleware ahead of the register handler.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup, registerMiddlewares ...gin.HandlerFunc) {
	if len(registerMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, registerMiddlewares...)
		chain = append(chain, h.register)
		r.POST("/register", chain...)
	} else {
		r.POST("/register", h.register)
	}

	r.POST("/verify-email", h.verifyEmail)
	r.POST("/resend-verification", h.resendVerification)
}

var registerErrorCases = []ErrorCase{
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Kind: "email_taken", Message: "email already registered"},
}

func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	account, err := h.registration.Register(c.Request.Context(), usecase.RegisterRequest{
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Password:      req.Password,
		TermsAccepted: req.TermsAccepted,
		IP:            strings.TrimSpace(c.ClientIP()),
		UserAgent:     strings.TrimSpace(c.Request.UserAgent()),
	})
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			resp := NewErrorResponse(c, policyErr.Message)
			resp.Kind = policyErr.Code
			c.JSON(http.StatusBadRequest, resp)
			return
		}
		RespondWithMappedError(c, err, registerErrorCases, http.StatusInternalServerError, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Account:              newAccountSummary(*account),
		RequiresVerification: !account.IsVerified,
		Message:              "verification email sent",
	})
}

var verifyEmailErrorCases = []ErrorCase{
	{Err: usecase.ErrVerificationTokenInvalid, Status: http.StatusBadRequest, Kind: "verification_token_invalid", Message: "invalid verification token"},
	{Err: usecase.ErrVerificationTokenExpired, Status: http.StatusBadRequest, Kind: "verification_token_expired", Message: "verification token expired"},
}

func (h *RegistrationHandler) verifyEmail(c *gin.Context) {
	var req EmailVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if err := h.registration.VerifyEmail(c.Request.Context(), strings.TrimSpace(req.Token)); err != nil {
		RespondWithMappedError(c, err, verifyEmailErrorCases, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}

func (h *RegistrationHandler) resendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	// Response shape does not reveal whether the address is registered.
	if err := h.registration.ResendVerification(c.Request.Context(), strings.TrimSpace(req.Email)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resend verification"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the address is registered, a verification email has been sent"})
}
