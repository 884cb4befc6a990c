package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/background"
	"github.com/igrus/authd/internal/config"
	"github.com/igrus/authd/internal/database"
	"github.com/igrus/authd/internal/handlers"
	appmiddleware "github.com/igrus/authd/internal/middleware"
	"github.com/igrus/authd/internal/repositories"
	"github.com/igrus/authd/internal/routes"
	"github.com/igrus/authd/internal/services"
	pkghttp "github.com/igrus/authd/pkg/http"
	pkglogger "github.com/igrus/authd/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	verificationRepo := repositories.NewEmailVerificationRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	resetTokenRepo := repositories.NewPasswordResetRepository(db)
	loginHistoryRepo := repositories.NewLoginHistoryRepository(db)
	consentRepo := repositories.NewPrivacyConsentRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.JWTIssuer,
		cfg.Auth.JWTAudience,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 100,
	})

	emailSender, err := services.NewAWSSESEmailSender(
		cfg.Mail.AWSRegion,
		cfg.Mail.FromAddress,
		cfg.Mail.FrontendURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	verificationService := services.NewVerificationService(
		verificationRepo,
		userRepo,
		emailSender,
		cfg.Mail.VerificationCodeExpiry,
		cfg.Mail.VerificationMaxAttempts,
		cfg.Mail.VerificationResendCooldown,
		logger,
		auditLogger,
	)
	loginGuard := services.NewLoginAttemptService(
		loginAttemptRepo,
		cfg.Auth.LoginAttemptsMax,
		cfg.Auth.LoginLockoutDuration,
		logger,
		auditLogger,
	)
	authService := services.NewAuthService(
		userRepo,
		credentialRepo,
		loginGuard,
		refreshTokenRepo,
		loginHistoryRepo,
		tokenManager,
		timingDelay,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	signupService := services.NewSignupService(
		db,
		userRepo,
		credentialRepo,
		consentRepo,
		verificationService,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	accountService := services.NewAccountService(
		db,
		userRepo,
		credentialRepo,
		refreshTokenRepo,
		authService,
		cfg.Auth.RecoveryWindow,
		logger,
		auditLogger,
	)
	resetService := services.NewPasswordResetService(
		db,
		userRepo,
		resetTokenRepo,
		credentialRepo,
		refreshTokenRepo,
		emailSender,
		cfg.Auth.PasswordResetExpiry,
		logger,
		auditLogger,
	)
	approvalService := services.NewApprovalService(userRepo, credentialRepo, logger, auditLogger)
	historyService := services.NewLoginHistoryService(loginHistoryRepo, logger)

	cleanupManager := background.NewCleanupManager(
		db,
		userRepo,
		credentialRepo,
		refreshTokenRepo,
		consentRepo,
		verificationRepo,
		resetTokenRepo,
		loginHistoryRepo,
		loginAttemptRepo,
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

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, historyService, ipConfig)
	signupHandler := handlers.NewSignupHandler(signupService, verificationService)
	accountHandler := handlers.NewAccountHandler(accountService)
	resetHandler := handlers.NewPasswordResetHandler(resetService)
	adminHandler := handlers.NewAdminHandler(approvalService, accountService)

	// Router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(appmiddleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, signupHandler, accountHandler, resetHandler, adminHandler, tokenManager, userRepo)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
