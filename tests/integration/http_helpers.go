package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/background"
	"github.com/igrus/authd/internal/config"
	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/handlers"
	"github.com/igrus/authd/internal/routes"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

// SentEmail is one captured outbound message.
type SentEmail struct {
	To    string
	Kind  string // "verification_code" or "reset_link"
	Value string // the code or token
}

// MockEmailSender satisfies services.EmailSender and records every send so
// tests can pull codes and reset tokens out of the "mailbox".
type MockEmailSender struct {
	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockEmailSender) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: email, Kind: "verification_code", Value: code})
	return nil
}

func (m *MockEmailSender) SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: email, Kind: "reset_link", Value: token})
	return nil
}

// LastTo returns the most recent message sent to an address, or nil.
func (m *MockEmailSender) LastTo(email string) *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].To == email {
			msg := m.Sent[i]
			return &msg
		}
	}
	return nil
}

// Reset clears the captured mailbox.
func (m *MockEmailSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}

// TestServer wraps httptest.Server with the full service graph wired against
// a real database and a mocked email sender.
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Email  *MockEmailSender
	Config *config.Config

	Cleanup *background.CleanupManager
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long!!",
			JWTIssuer:          "authd-test",
			JWTAudience:        "authd-test-clients",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,

			LoginAttemptsMax:     5,
			LoginLockoutDuration: 15 * time.Minute,

			PasswordResetExpiry: 30 * time.Minute,
			RecoveryWindow:      5 * 24 * time.Hour,
		},
		Mail: config.MailConfig{
			VerificationCodeExpiry:     10 * time.Minute,
			VerificationMaxAttempts:    5,
			VerificationResendCooldown: 0, // no cooldown so tests can resend freely
		},
		Cleanup: config.CleanupConfig{
			RefreshTokenInterval:  time.Hour,
			UnverifiedInterval:    time.Hour,
			WithdrawnInterval:     time.Hour,
			LoginHistoryInterval:  time.Hour,
			LoginAttemptInterval:  time.Hour,
			UnverifiedRetention:   24 * time.Hour,
			LoginHistoryRetention: 365 * 24 * time.Hour,
			LoginAttemptRetention: 30 * 24 * time.Hour,
			DeleteBatchSize:       1000,
		},
	}

	repos := InitializeRepositories(db)
	mockEmail := &MockEmailSender{}
	auditLogger := pkglogger.NewAuditLogger(logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.JWTIssuer,
		cfg.Auth.JWTAudience,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	// Zero delay keeps the test suite fast; timing masking is covered by
	// its own unit tests.
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 0, RandomDelayMs: 0})

	verificationService := services.NewVerificationService(
		repos.Verifications,
		repos.Users,
		mockEmail,
		cfg.Mail.VerificationCodeExpiry,
		cfg.Mail.VerificationMaxAttempts,
		cfg.Mail.VerificationResendCooldown,
		logger,
		auditLogger,
	)
	loginGuard := services.NewLoginAttemptService(
		repos.LoginAttempts,
		cfg.Auth.LoginAttemptsMax,
		cfg.Auth.LoginLockoutDuration,
		logger,
		auditLogger,
	)
	authService := services.NewAuthService(
		repos.Users,
		repos.Credentials,
		loginGuard,
		repos.RefreshTokens,
		repos.LoginHistory,
		tokenManager,
		timingDelay,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	signupService := services.NewSignupService(
		db,
		repos.Users,
		repos.Credentials,
		repos.Consents,
		verificationService,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	accountService := services.NewAccountService(
		db,
		repos.Users,
		repos.Credentials,
		repos.RefreshTokens,
		authService,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	resetService := services.NewPasswordResetService(
		db,
		repos.Users,
		repos.ResetTokens,
		repos.Credentials,
		repos.RefreshTokens,
		mockEmail,
		cfg.Auth.PasswordResetExpiry,
		logger,
		auditLogger,
	)
	approvalService := services.NewApprovalService(repos.Users, repos.Credentials, logger, auditLogger)
	historyService := services.NewLoginHistoryService(repos.LoginHistory, logger)

	cleanupManager := background.NewCleanupManager(
		db,
		repos.Users,
		repos.Credentials,
		repos.RefreshTokens,
		repos.Consents,
		repos.Verifications,
		repos.ResetTokens,
		repos.LoginHistory,
		repos.LoginAttempts,
		background.Config{
			RefreshTokenInterval:  cfg.Cleanup.RefreshTokenInterval,
			UnverifiedInterval:    cfg.Cleanup.UnverifiedInterval,
			WithdrawnInterval:     cfg.Cleanup.WithdrawnInterval,
			LoginHistoryInterval:  cfg.Cleanup.LoginHistoryInterval,
			LoginAttemptInterval:  cfg.Cleanup.LoginAttemptInterval,
			UnverifiedRetention:   cfg.Cleanup.UnverifiedRetention,
			RecoveryWindow:        cfg.Auth.RecoveryWindow,
			LoginHistoryRetention: cfg.Cleanup.LoginHistoryRetention,
			LoginAttemptRetention: cfg.Cleanup.LoginAttemptRetention,
			DeleteBatchSize:       cfg.Cleanup.DeleteBatchSize,
		},
		logger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: nil}
	authHandler := handlers.NewAuthHandler(authService, historyService, ipConfig)
	signupHandler := handlers.NewSignupHandler(signupService, verificationService)
	accountHandler := handlers.NewAccountHandler(accountService)
	resetHandler := handlers.NewPasswordResetHandler(resetService)
	adminHandler := handlers.NewAdminHandler(approvalService, accountService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, signupHandler, accountHandler, resetHandler, adminHandler, tokenManager, repos.Users)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:  server,
		DB:      db,
		Email:   mockEmail,
		Config:  cfg,
		Cleanup: cleanupManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts access/refresh tokens from a login or
// refresh response.
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, err error) {
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", "", err
	}
	return tokenResp.AccessToken, tokenResp.RefreshToken, nil
}

// GetErrorCode extracts the machine-readable error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}
