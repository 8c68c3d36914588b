package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/repository"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/middleware"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// AuthHandler exposes login, two-factor completion, and session endpoints.
type AuthHandler struct {
	login  *usecase.LoginService
	tokens *usecase.TokenService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(login *usecase.LoginService, tokens *usecase.TokenService) *AuthHandler {
	return &AuthHandler{
		login:  login,
		tokens: tokens,
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.loginHandler)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.loginHandler)
	}

	r.POST("/two-factor/verify", h.verifyTwoFactor)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
	r.POST("/logout-all", authMiddleware, h.logoutAll)
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Kind: "invalid_credentials", Message: "invalid email or password"},
	{Err: usecase.ErrAccountBlocked, Status: http.StatusForbidden, Kind: "account_blocked", Message: "account is blocked"},
	{Err: usecase.ErrAccountNotVerified, Status: http.StatusForbidden, Kind: "account_not_verified", Message: "email address is not verified"},
}

func (h *AuthHandler) loginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.login.Login(c.Request.Context(), usecase.LoginRequest{
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		RememberMe: req.RememberMe,
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "authentication failed")
		return
	}

	if result.TwoFactorRequired {
		c.JSON(http.StatusOK, TwoFactorPendingResponse{
			Message:           "a verification code has been sent to your email",
			TwoFactorRequired: true,
			ContinuationToken: result.ContinuationToken,
		})
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

var twoFactorErrorCases = []ErrorCase{
	{Err: usecase.ErrContinuationInvalid, Status: http.StatusUnauthorized, Kind: "continuation_invalid", Message: "login session expired, please sign in again"},
	{Err: usecase.ErrTwoFactorInvalid, Status: http.StatusUnauthorized, Kind: "two_factor_invalid", Message: "invalid verification code"},
	{Err: usecase.ErrTwoFactorExpired, Status: http.StatusUnauthorized, Kind: "two_factor_expired", Message: "verification code expired, please sign in again"},
	{Err: usecase.ErrAccountBlocked, Status: http.StatusForbidden, Kind: "account_blocked", Message: "account is blocked"},
}

func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "continuation_token and code are required"))
		return
	}

	result, err := h.login.VerifyTwoFactor(
		c.Request.Context(),
		strings.TrimSpace(req.ContinuationToken),
		strings.TrimSpace(req.Code),
		strings.TrimSpace(c.ClientIP()),
		strings.TrimSpace(c.Request.UserAgent()),
	)
	if err != nil {
		RespondWithMappedError(c, err, twoFactorErrorCases, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

var refreshErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Kind: "invalid_refresh_token", Message: "invalid refresh token"},
	{Err: usecase.ErrExpiredRefreshToken, Status: http.StatusUnauthorized, Kind: "expired_refresh_token", Message: "refresh token expired"},
	{Err: usecase.ErrRefreshTokenReused, Status: http.StatusConflict, Kind: "refresh_token_reused", Message: "refresh token reuse detected, all sessions revoked"},
	{Err: usecase.ErrAccountBlocked, Status: http.StatusForbidden, Kind: "account_blocked", Message: "account is blocked"},
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken, usecase.SessionMetadata{
		IP:        strings.TrimSpace(c.ClientIP()),
		UserAgent: strings.TrimSpace(c.Request.UserAgent()),
	})
	if err != nil {
		RespondWithMappedError(c, err, refreshErrorCases, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenRefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresInSeconds(pair.AccessExpiresAt),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, usecase.ErrInvalidRefreshToken) {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) logoutAll(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.tokens.RevokeAll(c.Request.Context(), accountID, "logout_all")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{
		Message:       "all sessions revoked",
		TokensRevoked: revoked,
	})
}

func newLoginResponse(result *usecase.LoginResult) LoginResponse {
	resp := LoginResponse{
		AccessToken:  result.Pair.AccessToken,
		RefreshToken: result.Pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresInSeconds(result.Pair.AccessExpiresAt),
	}
	if result.Account != nil {
		resp.Account = newAccountSummary(*result.Account)
	}
	return resp
}

func expiresInSeconds(expiresAt time.Time) int {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds())
}
