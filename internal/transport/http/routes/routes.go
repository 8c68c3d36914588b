package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/handlers"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/middleware"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Login        *usecase.LoginService
	Tokens       *usecase.TokenService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	TwoFactor    *usecase.TwoFactorService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Tokens)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Login, deps.Services.Tokens)
		authHandler.RegisterRoutes(authGroup, authMiddleware, buildRateLimitChain(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)...)

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration)
		registrationHandler.RegisterRoutes(authGroup, buildRateLimitChain(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts)...)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords)
		passwordGroup := authGroup.Group("/password")

		forgotHandlers := append(buildRateLimitChain(deps, "password_forgot_ip", deps.Config.RateLimit.ForgotPasswordMaxAttempts), passwordHandler.Forgot)
		passwordGroup.POST("/forgot", forgotHandlers...)
		passwordGroup.POST("/reset", passwordHandler.Reset)
		passwordGroup.POST("/change", authMiddleware, passwordHandler.Change)

		twoFactorHandler := handlers.NewTwoFactorHandler(deps.Services.TwoFactor)
		twoFactorGroup := authGroup.Group("/two-factor")
		twoFactorGroup.Use(authMiddleware)
		twoFactorHandler.RegisterRoutes(twoFactorGroup)
	}

	return r
}

func buildRateLimitChain(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
