package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/subtrackhq/subtrack/internal/db"
	"github.com/subtrackhq/subtrack/internal/handlers"
	"github.com/subtrackhq/subtrack/internal/handlers/middleware"
	"github.com/subtrackhq/subtrack/internal/identity"
	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/repository/postgres"
	"github.com/subtrackhq/subtrack/internal/service/auth"
	"github.com/subtrackhq/subtrack/internal/service/subscription"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	production := c.Environment == logger.EnvProduction

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Identity provider client
	provider := identity.NewClient(c.IdentityAPIURL, c.IdentityAPIKey, logger)

	// Initialize services
	session, err := auth.NewSessionManager(auth.SessionConfig{
		SecretKey:    c.SecretKey,
		AccessTTL:    c.AccessTokenTTL,
		RefreshTTL:   c.RefreshTokenTTL,
		Production:   production,
		RotationMode: c.RotationMode,
		Store:        storage,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating session manager. Err: %w", err)
	}

	authService, err := auth.NewService(
		auth.Config{PasswordCheck: c.PasswordCheck},
		session,
		provider,
		storage.User(),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	subService := subscription.NewService(storage.Subscription())

	mux := handlers.NewRouter(
		handlers.RouterConfig{
			AuthRateLimit:  middleware.DefaultAuthRateLimit,
			AllowedOrigins: c.AllowedOrigins,
		},
		authService,
		subService,
		provider,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
