package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Account   AccountSettings   `mapstructure:"account"`
	TwoFactor TwoFactorSettings `mapstructure:"two_factor"`
	Mail      MailSettings      `mapstructure:"mail"`
}

type AppSettings struct {
	Name    string `mapstructure:"name" validate:"required"`
	Env     string `mapstructure:"env" validate:"oneof=development staging production"`
	Host    string `mapstructure:"host" validate:"required"`
	Port    int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	User              string        `mapstructure:"user" validate:"required"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database" validate:"required"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures sliding-window limits per endpoint.
type RateLimitSettings struct {
	WindowDuration            time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts          int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts       int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts        int           `mapstructure:"refresh_max_attempts"`
	ForgotPasswordWindow      time.Duration `mapstructure:"forgot_password_window"`
	ForgotPasswordMaxAttempts int           `mapstructure:"forgot_password_max_attempts"`
}

// AccountSettings controls credential lifecycle behavior.
type AccountSettings struct {
	BcryptCost             int           `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
	MaxFailedLogins        int           `mapstructure:"max_failed_logins" validate:"gt=0"`
	LockoutDuration        time.Duration `mapstructure:"lockout_duration" validate:"gt=0"`
	PasswordHistoryLimit   int           `mapstructure:"password_history_limit" validate:"gte=0"`
	MinPasswordAge         time.Duration `mapstructure:"min_password_age"`
	ResetTokenTTL          time.Duration `mapstructure:"reset_token_ttl"`
	VerificationTokenTTL   time.Duration `mapstructure:"verification_token_ttl"`
	AllowReregisterDeleted bool          `mapstructure:"allow_reregister_deleted"`
	RequireVerifiedEmail   bool          `mapstructure:"require_verified_email"`
}

// TwoFactorSettings controls email challenge issuance.
type TwoFactorSettings struct {
	CodeLength      int           `mapstructure:"code_length"`
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	ContinuationKey string        `mapstructure:"continuation_key"`
	ContinuationTTL time.Duration `mapstructure:"continuation_ttl"`
}

type JWTSettings struct {
	KeyDirectory     string        `mapstructure:"key_directory" validate:"required"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl" validate:"gt=0"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl" validate:"gt=0"`
	RememberMeTTL    time.Duration `mapstructure:"remember_me_ttl" validate:"gt=0"`
	RefreshTokenSize int           `mapstructure:"refresh_token_size" validate:"gte=16"`
}

type MailSettings struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	Stub        bool   `mapstructure:"stub"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.base_url",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.remember_me_ttl",
		"jwt.refresh_token_size",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"rate_limit.forgot_password_window",
		"rate_limit.forgot_password_max_attempts",
		"account.bcrypt_cost",
		"account.max_failed_logins",
		"account.lockout_duration",
		"account.password_history_limit",
		"account.min_password_age",
		"account.reset_token_ttl",
		"account.verification_token_ttl",
		"account.allow_reregister_deleted",
		"account.require_verified_email",
		"two_factor.code_length",
		"two_factor.code_ttl",
		"two_factor.continuation_key",
		"two_factor.continuation_ttl",
		"mail.host",
		"mail.port",
		"mail.username",
		"mail.password",
		"mail.from_address",
		"mail.from_name",
		"mail.stub",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ecommerce-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.base_url", "http://localhost:3000")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "auth")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.remember_me_ttl", "720h")
	v.SetDefault("jwt.refresh_token_size", 32)

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "ecommerce-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)
	v.SetDefault("rate_limit.forgot_password_window", "1h")
	v.SetDefault("rate_limit.forgot_password_max_attempts", 3)

	v.SetDefault("account.bcrypt_cost", 12)
	v.SetDefault("account.max_failed_logins", 5)
	v.SetDefault("account.lockout_duration", "15m")
	v.SetDefault("account.password_history_limit", 3)
	v.SetDefault("account.min_password_age", "24h")
	v.SetDefault("account.reset_token_ttl", "1h")
	v.SetDefault("account.verification_token_ttl", "24h")
	v.SetDefault("account.allow_reregister_deleted", true)
	v.SetDefault("account.require_verified_email", false)

	v.SetDefault("two_factor.code_length", 6)
	v.SetDefault("two_factor.code_ttl", "10m")
	v.SetDefault("two_factor.continuation_key", "")
	v.SetDefault("two_factor.continuation_ttl", "10m")

	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from_address", "no-reply@example.com")
	v.SetDefault("mail.from_name", "Account Security")
	v.SetDefault("mail.stub", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
