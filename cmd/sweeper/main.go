// Package main is the entry point for the maintenance sweeper.
//
// The sweeper runs the periodic jobs that keep derived state honest: class
// status progression by clock, subscription expiry, and auto-completion of
// reservations for classes that ended before the current day. It runs either
// once (SWEEP_RUN_ONCE=true, for cron-style deployment) or on a fixed
// interval until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/db"
	"studiobook/internal/membership"
	"studiobook/internal/reservations"
	"studiobook/internal/scheduler"
	"studiobook/internal/scheduling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("studiobook sweeper starting",
		"environment", cfg.Environment,
		"interval", cfg.Sweeper.Interval.String(),
		"run_once", cfg.Sweeper.RunOnce,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	zoneRepo := db.NewZoneRepository(pool)
	instructorRepo := db.NewInstructorRepository(pool)
	classRepo := db.NewClassRepository(pool)

	schedulingSvc := scheduling.NewService(classRepo, zoneRepo, instructorRepo, cfg.Policy, nil, logger)
	ledger := membership.NewLedger(db.NewMembershipDBImpl(pool), nil, logger)
	engine := reservations.NewEngine(db.NewReservationDBImpl(pool), cfg.Policy, nil, logger)

	runner := scheduler.NewMaintenanceRunner(schedulingSvc, ledger, engine, nil, logger)

	if cfg.Sweeper.RunOnce {
		report := runner.RunSweep(context.Background())
		if report.Failures > 0 {
			return fmt.Errorf("sweep finished with %d failed jobs", report.Failures)
		}
		return nil
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()

	// First sweep runs immediately rather than one interval in.
	runner.RunSweep(context.Background())

	for {
		select {
		case <-ticker.C:
			runner.RunSweep(context.Background())
		case sig := <-shutdown:
			logger.Info("shutdown signal received", "signal", sig.String())
			return nil
		}
	}
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
