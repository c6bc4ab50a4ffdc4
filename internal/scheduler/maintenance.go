// Package scheduler implements the maintenance sweeps that keep derived
// state honest over time: class status progression by clock, subscription
// expiry, and day-after auto-completion of confirmed reservations.
//
// Sweeps use partial-failure semantics. Each job runs to completion
// independently; a failing job is logged and reported without blocking the
// others, and the next interval retries naturally.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"studiobook/internal/types"
)

// ClassProgressor advances class statuses by clock.
type ClassProgressor interface {
	ProgressClassStatuses(ctx context.Context, now time.Time) (int, error)
}

// SubscriptionExpirer expires subscriptions whose validity window has passed.
type SubscriptionExpirer interface {
	ProcessExpirations(ctx context.Context, now time.Time) (int, error)
}

// ReservationFinalizer auto-completes confirmed reservations for classes that
// ended before the current day.
type ReservationFinalizer interface {
	ProcessCompletedReservations(ctx context.Context, now time.Time) (int, error)
}

// SweepReport summarizes one maintenance sweep.
type SweepReport struct {
	ClassesProgressed    int
	SubscriptionsExpired int
	ReservationsClosed   int
	Failures             int
}

// MaintenanceRunner orchestrates the periodic sweeps.
type MaintenanceRunner struct {
	classes       ClassProgressor
	subscriptions SubscriptionExpirer
	reservations  ReservationFinalizer
	clock         types.Clock
	logger        *slog.Logger
}

// NewMaintenanceRunner creates a maintenance runner.
func NewMaintenanceRunner(classes ClassProgressor, subscriptions SubscriptionExpirer, reservations ReservationFinalizer, clock types.Clock, logger *slog.Logger) *MaintenanceRunner {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceRunner{
		classes:       classes,
		subscriptions: subscriptions,
		reservations:  reservations,
		clock:         clock,
		logger:        logger,
	}
}

// RunSweep executes all maintenance jobs once against a single snapshot of
// the clock. Class progression runs first so the reservation sweep sees
// finished classes; the independent jobs then run concurrently. Job failures
// are logged and counted, never propagated, so one bad job cannot starve the
// others.
func (r *MaintenanceRunner) RunSweep(ctx context.Context) SweepReport {
	now := r.clock.Now()
	report := SweepReport{}

	progressed, err := r.classes.ProgressClassStatuses(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "class progression sweep failed", slog.Any("error", err))
		report.Failures++
	}
	report.ClassesProgressed = progressed

	g, gctx := errgroup.WithContext(ctx)

	var expired, closed int
	var expireErr, closeErr error
	g.Go(func() error {
		expired, expireErr = r.subscriptions.ProcessExpirations(gctx, now)
		return nil
	})
	g.Go(func() error {
		closed, closeErr = r.reservations.ProcessCompletedReservations(gctx, now)
		return nil
	})
	_ = g.Wait()

	if expireErr != nil {
		r.logger.ErrorContext(ctx, "subscription expiry sweep failed", slog.Any("error", expireErr))
		report.Failures++
	}
	if closeErr != nil {
		r.logger.ErrorContext(ctx, "reservation completion sweep failed", slog.Any("error", closeErr))
		report.Failures++
	}
	report.SubscriptionsExpired = expired
	report.ReservationsClosed = closed

	r.logger.InfoContext(ctx, "maintenance sweep finished",
		slog.Time("as_of", now),
		slog.Int("classes_progressed", report.ClassesProgressed),
		slog.Int("subscriptions_expired", report.SubscriptionsExpired),
		slog.Int("reservations_closed", report.ReservationsClosed),
		slog.Int("failures", report.Failures),
	)
	return report
}
