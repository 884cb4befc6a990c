package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/igrus/authd/internal/auth"
	"github.com/igrus/authd/internal/handlers"
	"github.com/igrus/authd/internal/middleware"
	"github.com/igrus/authd/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	signupHandler *handlers.SignupHandler,
	accountHandler *handlers.AccountHandler,
	resetHandler *handlers.PasswordResetHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	users auth.UserFetcher,
) {
	authLimit := middleware.DefaultAuthRateLimit()
	signupLimit := middleware.DefaultSignupRateLimit()
	userLimit := middleware.DefaultAuthenticatedRateLimit()

	// Public routes. Credential-guessing surfaces get the tight IP limit,
	// account-creation surfaces the tighter one.
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/refresh", authHandler.Refresh)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/recovery/check", accountHandler.CheckRecovery)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/recovery", accountHandler.Recover)

	router.With(middleware.RateLimitByIP(signupLimit)).Post("/auth/signup", signupHandler.Signup)
	router.With(middleware.RateLimitByIP(signupLimit)).Post("/auth/verify-email", signupHandler.VerifyEmail)
	router.With(middleware.RateLimitByIP(signupLimit)).Post("/auth/resend-verification", signupHandler.ResendVerification)

	router.With(middleware.RateLimitByIP(signupLimit)).Post("/auth/password-reset", resetHandler.Request)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/password-reset/validate", resetHandler.Validate)
	router.With(middleware.RateLimitByIP(authLimit)).Post("/auth/password-reset/confirm", resetHandler.Confirm)

	// Authenticated routes.
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, users))

		r.With(middleware.RateLimitByUserID(userLimit, "write")).Post("/auth/logout", authHandler.Logout)
		r.With(middleware.RateLimitByUserID(userLimit, "write")).Post("/auth/logout-all", authHandler.LogoutAll)

		r.With(middleware.RateLimitByUserID(userLimit, "read")).Get("/users/me/login-history", authHandler.LoginHistory)
		r.With(middleware.RateLimitByUserID(userLimit, "write")).Delete("/users/me", accountHandler.Withdraw)

		// Operator console.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(users, models.RoleOperator))
			r.Use(middleware.RateLimitByUserID(userLimit, "admin"))

			r.Get("/admin/associates", adminHandler.ListPendingAssociates)
			r.Post("/admin/associates/{id}/approve", adminHandler.Approve)
			r.Post("/admin/associates/approve", adminHandler.ApproveBulk)
			r.Post("/admin/users/{id}/suspend", adminHandler.Suspend)
			r.Post("/admin/users/{id}/unsuspend", adminHandler.Unsuspend)
		})
	})
}
