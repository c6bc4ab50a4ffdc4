// Package main is the entry point for the reservation API server.
//
// It loads configuration, connects the database pool (running migrations
// when enabled), wires the repositories, domain services, and HTTP handlers,
// and serves requests until SIGINT/SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"studiobook/internal/api/handlers"
	"studiobook/internal/billing"
	"studiobook/internal/config"
	"studiobook/internal/core"
	"studiobook/internal/db"
	"studiobook/internal/external"
	"studiobook/internal/membership"
	"studiobook/internal/reservations"
	"studiobook/internal/scheduling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("studiobook API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(cfg.Database); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	// Repositories.
	zoneRepo := db.NewZoneRepository(pool)
	instructorRepo := db.NewInstructorRepository(pool)
	planRepo := db.NewPlanRepository(pool)
	studentRepo := db.NewStudentRepository(pool)
	classRepo := db.NewClassRepository(pool)

	// Domain services.
	schedulingSvc := scheduling.NewService(classRepo, zoneRepo, instructorRepo, cfg.Policy, nil, logger)
	membershipDB := db.NewMembershipDBImpl(pool)
	ledger := membership.NewLedger(membershipDB, nil, logger)
	reservationDB := db.NewReservationDBImpl(pool)
	engine := reservations.NewEngine(reservationDB, cfg.Policy, nil, logger)

	// Payment integration. Checkout stays nil without a secret key; the
	// subscription handler then rejects checkout requests with a clear error
	// while direct provisioning keeps working.
	var bridge *billing.Bridge
	if cfg.Billing.StripeSecretKey.Unmask() != "" {
		stripeClient := external.NewStripeClient(
			&http.Client{Timeout: 15 * time.Second},
			external.StripeClientConfig{
				SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
				BaseURL:   cfg.Billing.StripeAPIBaseURL,
				Logger:    logger,
			},
		)
		bridge = billing.NewBridge(ledger, membershipDB, stripeClient, cfg.Server.PublicURL, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout and webhook fulfillment disabled")
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, &databaseProbe{pool: pool})

	// Handlers.
	zoneHandler := handlers.NewZoneHandler(zoneRepo, srv.Validator, logger)
	instructorHandler := handlers.NewInstructorHandler(instructorRepo, srv.Validator, logger)
	planHandler := handlers.NewPlanHandler(planRepo, srv.Validator, logger)
	studentHandler := handlers.NewStudentHandler(studentRepo, srv.Validator, logger)
	classHandler := handlers.NewClassHandler(schedulingSvc, srv.Validator, logger)
	reservationHandler := handlers.NewReservationHandler(engine, srv.Validator, logger)

	var checkout handlers.CheckoutStarter
	if bridge != nil {
		checkout = bridge
	}
	subscriptionHandler := handlers.NewSubscriptionHandler(ledger, checkout, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		zoneHandler.RegisterRoutes,
		instructorHandler.RegisterRoutes,
		planHandler.RegisterRoutes,
		studentHandler.RegisterRoutes,
		classHandler.RegisterRoutes,
		reservationHandler.RegisterRoutes,
		subscriptionHandler.RegisterRoutes,
	)

	if bridge != nil {
		webhookHandler := handlers.NewStripeWebhookHandler(
			&external.StripeVerifier{},
			bridge,
			cfg.Billing.StripeWebhookSecret.Unmask(),
			logger,
		)
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, webhookHandler.RegisterRoutes)
	}

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// databaseProbe reports database reachability for the health endpoint.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p *databaseProbe) Name() string { return "database" }

func (p *databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
