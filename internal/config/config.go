package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Mail     MailConfig
	Cleanup  CleanupConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string // CIDR ranges allowed to set X-Forwarded-For
}

type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	LoginAttemptsMax     int
	LoginLockoutDuration time.Duration

	PasswordResetExpiry time.Duration
	RecoveryWindow      time.Duration
}

type MailConfig struct {
	AWSRegion   string
	FromAddress string
	FrontendURL string

	VerificationCodeExpiry     time.Duration
	VerificationMaxAttempts    int
	VerificationResendCooldown time.Duration
}

type CleanupConfig struct {
	RefreshTokenInterval  time.Duration
	UnverifiedInterval    time.Duration
	WithdrawnInterval     time.Duration
	LoginHistoryInterval  time.Duration
	LoginAttemptInterval  time.Duration
	UnverifiedRetention   time.Duration
	LoginHistoryRetention time.Duration
	LoginAttemptRetention time.Duration
	DeleteBatchSize       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authd"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			JWTIssuer:          getEnv("JWT_ISSUER", "igrus-auth"),
			JWTAudience:        getEnv("JWT_AUDIENCE", "igrus-web"),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 30*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 14*24*time.Hour),

			LoginAttemptsMax:     getEnvAsInt("LOGIN_ATTEMPTS_MAX", 5),
			LoginLockoutDuration: getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 30*time.Minute),

			PasswordResetExpiry: getEnvAsDuration("PASSWORD_RESET_EXPIRY", 30*time.Minute),
			RecoveryWindow:      getEnvAsDuration("RECOVERY_WINDOW", 5*24*time.Hour),
		},
		Mail: MailConfig{
			AWSRegion:   getEnv("AWS_REGION", "ap-northeast-2"),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", "noreply@igrus.net"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

			VerificationCodeExpiry:     getEnvAsDuration("VERIFICATION_CODE_EXPIRY", 10*time.Minute),
			VerificationMaxAttempts:    getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			VerificationResendCooldown: getEnvAsDuration("VERIFICATION_RESEND_COOLDOWN", 5*time.Minute),
		},
		Cleanup: CleanupConfig{
			RefreshTokenInterval:  getEnvAsDuration("CLEANUP_REFRESH_TOKEN_INTERVAL", 24*time.Hour),
			UnverifiedInterval:    getEnvAsDuration("CLEANUP_UNVERIFIED_INTERVAL", 24*time.Hour),
			WithdrawnInterval:     getEnvAsDuration("CLEANUP_WITHDRAWN_INTERVAL", 24*time.Hour),
			LoginHistoryInterval:  getEnvAsDuration("CLEANUP_LOGIN_HISTORY_INTERVAL", 24*time.Hour),
			LoginAttemptInterval:  getEnvAsDuration("CLEANUP_LOGIN_ATTEMPT_INTERVAL", 24*time.Hour),
			UnverifiedRetention:   getEnvAsDuration("UNVERIFIED_RETENTION", 24*time.Hour),
			LoginHistoryRetention: getEnvAsDuration("LOGIN_HISTORY_RETENTION", 365*24*time.Hour),
			LoginAttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 30*24*time.Hour),
			DeleteBatchSize:       getEnvAsInt("CLEANUP_DELETE_BATCH_SIZE", 1000),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
