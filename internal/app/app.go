package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"zhsystem/internal/auth"
	"zhsystem/internal/config"
	"zhsystem/internal/database"
	"zhsystem/internal/handler"
	"zhsystem/internal/mail"
	"zhsystem/internal/metrics"
	"zhsystem/internal/middleware"
	"zhsystem/internal/repository"
	"zhsystem/internal/router"
	"zhsystem/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")

	issuer := auth.NewIssuer(auth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})

	mailer, err := mail.NewSMTPDispatcher(mail.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		DisplayName: cfg.SMTPDisplayName,
	}, cfg.ClientBaseURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mail dispatcher: %w", err)
	}

	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID not set, Google login will reject every token")
	}

	authService := service.NewAuthService(service.AuthDeps{
		Users:    userRepo,
		Tokens:   tokenRepo,
		Roles:    roleRepo,
		Tx:       database.NewTransactor(pool),
		Hasher:   auth.NewBcryptHasher(cfg.BcryptCost),
		Issuer:   issuer,
		Mailer:   mailer,
		Identity: auth.NewGoogleVerifier(cfg.GoogleClientID),
	})

	if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed admin account: %w", err)
	}

	auditService := service.NewAuditService(auditRepo)
	registry := metrics.NewRegistry()

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(issuer), router.Handlers{
		Auth:    handler.NewAuthHandler(authService, auditService),
		Audit:   handler.NewAuditHandler(auditService),
		Health:  handler.NewHealthHandler(db),
		Metrics: metrics.Handler(registry),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			db.Close,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
}
