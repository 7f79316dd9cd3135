package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zhsystem/internal/config"
	"zhsystem/internal/handler"
	"zhsystem/internal/middleware"
	"zhsystem/internal/model"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Audit   *handler.AuditHandler
	Health  *handler.HealthHandler
	Metrics http.Handler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Check)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Get("/verify-email", h.Auth.VerifyEmail)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.Post("/resend-verification", h.Auth.ResendVerification)
			auth.Post("/auth/google-login", h.Auth.GoogleLogin)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Post("/revoke", h.Auth.Revoke)
				protected.Post("/logout", h.Auth.Logout)
				protected.Get("/me", h.Auth.Me)
			})
		})

		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin)).Get("/audit", h.Audit.List)
	})

	return r
}
