package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "pass")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_MissingDBPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-sufficiently-long-dev-secret")
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-sufficiently-long-dev-secret")
	t.Setenv("DB_PASSWORD", "pass")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Auth.LoginAttemptsMax)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LoginLockoutDuration)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 5*24*time.Hour, cfg.Auth.RecoveryWindow)
	assert.Equal(t, 10*time.Minute, cfg.Mail.VerificationCodeExpiry)
	assert.Equal(t, 5, cfg.Mail.VerificationMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Mail.VerificationResendCooldown)
	assert.Equal(t, 30*time.Minute, cfg.Auth.PasswordResetExpiry)
	assert.Equal(t, 365*24*time.Hour, cfg.Cleanup.LoginHistoryRetention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-sufficiently-long-dev-secret")
	t.Setenv("DB_PASSWORD", "pass")
	t.Setenv("LOGIN_ATTEMPTS_MAX", "3")
	t.Setenv("LOGIN_LOCKOUT_DURATION", "10m")
	t.Setenv("RECOVERY_WINDOW", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Auth.LoginAttemptsMax)
	assert.Equal(t, 10*time.Minute, cfg.Auth.LoginLockoutDuration)
	assert.Equal(t, 48*time.Hour, cfg.Auth.RecoveryWindow)
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		env     string
		wantErr bool
	}{
		{"short secret in production", "short", "production", true},
		{"16 chars in development", "exactly-16-chars", "development", false},
		{"16 chars in production", "exactly-16-chars", "production", true},
		{"32 chars in production", "a-very-long-secret-of-32-chars!!", "production", false},
		{"weak secret", "changeme", "development", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "pass", Name: "authd", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pass dbname=authd sslmode=disable",
		cfg.DSN())
}
