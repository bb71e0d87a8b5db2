package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	JWT          JWTSettings          `mapstructure:"jwt"`
	OTP          OTPSettings          `mapstructure:"otp"`
	Lockout      LockoutSettings      `mapstructure:"lockout"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Password     PasswordSettings     `mapstructure:"password"`
	Argon2       Argon2Settings       `mapstructure:"argon2"`
	Notification NotificationSettings `mapstructure:"notification"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// PrimaryIdentifier selects phone or email as the login identifier.
	PrimaryIdentifier  string   `mapstructure:"primary_identifier"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// IsProduction reports whether the service runs with production settings.
func (s AppSettings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and key prefixes
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	OTPPrefix       string `mapstructure:"otp_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	KeyID           string        `mapstructure:"key_id"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// OTPSettings configures one-time code generation and verification
type OTPSettings struct {
	Length           int           `mapstructure:"length"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	VerificationTTL  time.Duration `mapstructure:"verification_ttl"`
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	Login2FATTL      time.Duration `mapstructure:"login_2fa_ttl"`
}

// LockoutSettings configures progressive account lockout
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// RateLimitSettings configures the fixed-window OTP issuance limit and the
// per-IP limits on the login and forgot-password endpoints. A zero per-IP
// limit disables that rule.
type RateLimitSettings struct {
	OTPMaxRequests        int           `mapstructure:"otp_max_requests"`
	OTPWindow             time.Duration `mapstructure:"otp_window"`
	LoginMaxPerIP         int           `mapstructure:"login_max_per_ip"`
	PasswordResetMaxPerIP int           `mapstructure:"password_reset_max_per_ip"`
	IPWindow              time.Duration `mapstructure:"ip_window"`
}

type PasswordSettings struct {
	MinLength int `mapstructure:"min_length"`
	// MinStrengthScore is the lowest accepted zxcvbn score (0-4); 0 disables the check.
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type NotificationSettings struct {
	SMSEnabled   bool   `mapstructure:"sms_enabled"`
	EmailEnabled bool   `mapstructure:"email_enabled"`
	SenderName   string `mapstructure:"sender_name"`
}

type TelemetrySettings struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.primary_identifier",
	"app.cors_allowed_origins",
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
	"redis.otp_prefix",
	"redis.rate_limit_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"jwt.key_directory",
	"jwt.key_id",
	"jwt.issuer",
	"jwt.access_token_ttl",
	"jwt.refresh_token_ttl",
	"otp.length",
	"otp.max_attempts",
	"otp.verification_ttl",
	"otp.password_reset_ttl",
	"otp.login_2fa_ttl",
	"lockout.threshold",
	"lockout.duration",
	"rate_limit.otp_max_requests",
	"rate_limit.otp_window",
	"rate_limit.login_max_per_ip",
	"rate_limit.password_reset_max_per_ip",
	"rate_limit.ip_window",
	"password.min_length",
	"password.min_strength_score",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"notification.sms_enabled",
	"notification.email_enabled",
	"notification.sender_name",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"telemetry.tracing_enabled",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IAM")

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the auth flows cannot operate with.
func (c *AppConfig) Validate() error {
	switch {
	case c.OTP.Length < 4 || c.OTP.Length > 10:
		return fmt.Errorf("config: otp.length must be between 4 and 10, got %d", c.OTP.Length)
	case c.OTP.MaxAttempts <= 0:
		return fmt.Errorf("config: otp.max_attempts must be positive")
	case c.Lockout.Threshold <= 0:
		return fmt.Errorf("config: lockout.threshold must be positive")
	case c.Lockout.Duration <= 0:
		return fmt.Errorf("config: lockout.duration must be positive")
	case c.RateLimit.OTPMaxRequests <= 0 || c.RateLimit.OTPWindow <= 0:
		return fmt.Errorf("config: rate_limit otp settings must be positive")
	case c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL:
		return fmt.Errorf("config: jwt ttls must be positive and refresh must outlive access")
	}

	switch c.App.PrimaryIdentifier {
	case "phone", "email":
	default:
		return fmt.Errorf("config: app.primary_identifier must be phone or email, got %q", c.App.PrimaryIdentifier)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-verification")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.primary_identifier", "phone")
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "iam")
	v.SetDefault("postgres.password", "iam_password")
	v.SetDefault("postgres.database", "iam")
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
	v.SetDefault("redis.otp_prefix", "otp")
	v.SetDefault("redis.rate_limit_prefix", "otp_rate_limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "identity")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.key_id", "v1")
	v.SetDefault("jwt.issuer", "identity-verification")
	v.SetDefault("jwt.access_token_ttl", "1h")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.max_attempts", 3)
	v.SetDefault("otp.verification_ttl", "15m")
	v.SetDefault("otp.password_reset_ttl", "30m")
	v.SetDefault("otp.login_2fa_ttl", "5m")

	v.SetDefault("lockout.threshold", 5)
	v.SetDefault("lockout.duration", "30m")

	v.SetDefault("rate_limit.otp_max_requests", 3)
	v.SetDefault("rate_limit.otp_window", "60m")
	v.SetDefault("rate_limit.login_max_per_ip", 20)
	v.SetDefault("rate_limit.password_reset_max_per_ip", 5)
	v.SetDefault("rate_limit.ip_window", "1m")

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("notification.sms_enabled", false)
	v.SetDefault("notification.email_enabled", true)
	v.SetDefault("notification.sender_name", "GoTracking")

	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "identity-verification")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IAM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
