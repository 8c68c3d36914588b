package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/database"
	kafkainfra "github.com/mmudassir0/ecommerce-auth/internal/infra/kafka"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/logger"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/mail"
	redisinfra "github.com/mmudassir0/ecommerce-auth/internal/infra/redis"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/security"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/telemetry"
	postgresrepo "github.com/mmudassir0/ecommerce-auth/internal/repository/postgres"
	redisrepo "github.com/mmudassir0/ecommerce-auth/internal/repository/redis"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/middleware"
	"github.com/mmudassir0/ecommerce-auth/internal/transport/http/routes"
	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
	tokens *usecase.TokenService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	sealer, err := newContinuationSealer(cfg.TwoFactor)
	if err != nil {
		return nil, fmt.Errorf("init continuation sealer: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var mailer port.MailDispatcher
	if cfg.Mail.Stub || cfg.Mail.Host == "" {
		log.Info("smtp not configured, using stub mail dispatcher")
		mailer = mail.NewStubDispatcher(log)
	} else {
		mailer = mail.NewDispatcher(cfg.Mail, cfg.App.BaseURL, log)
	}

	hasher := security.NewBcryptHasher(cfg.Account.BcryptCost)
	passwordPolicy := security.NewPasswordPolicy()

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix + ":rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	revocationStore := redisrepo.NewRevocationRepository(redisClient.Client(), cfg.Redis.KeyPrefix+":revoked-token")

	tokenService := usecase.NewTokenService(cfg, repos.Accounts, repos.Tokens, revocationStore, eventPublisher, keyProvider, log)
	lockoutGuard := usecase.NewLockoutGuard(cfg, repos.Accounts, eventPublisher, mailer, log)
	twoFactorService := usecase.NewTwoFactorService(cfg, repos.Accounts, mailer, hasher, log)
	loginService := usecase.NewLoginService(cfg, repos.Accounts, hasher, lockoutGuard, twoFactorService, tokenService, sealer, eventPublisher, log)
	passwordService := usecase.NewPasswordService(cfg, repos.Accounts, tokenService, hasher, passwordPolicy, rateLimitStore, eventPublisher, mailer, log)
	registrationService := usecase.NewRegistrationService(cfg, repos.Accounts, repos.Tokens, hasher, passwordPolicy, eventPublisher, mailer, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Login:        loginService,
			Tokens:       tokenService,
			Registration: registrationService,
			Passwords:    passwordService,
			TwoFactor:    twoFactorService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
		tokens: tokenService,
	}, nil
}

// purgeExpiredTokens deletes refresh token rows past their validity window on
// an hourly cadence until ctx is cancelled.
func (a *Application) purgeExpiredTokens(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.tokens.PurgeExpired(ctx); err != nil {
				a.logger.Warn("purge expired refresh tokens", zap.Error(err))
			}
		}
	}
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	go a.purgeExpiredTokens(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// newContinuationSealer derives the AES key from config. The value may be raw
// 32 bytes or base64 of 32 bytes.
func newContinuationSealer(cfg config.TwoFactorSettings) (*security.ContinuationSealer, error) {
	raw := cfg.ContinuationKey
	if raw == "" {
		return nil, fmt.Errorf("two_factor.continuation_key is required")
	}

	key := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == 32 {
		key = decoded
	}

	ttl := cfg.ContinuationTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return security.NewContinuationSealer(key, ttl)
}
