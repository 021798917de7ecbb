// Package reconciler re-dispatches jobs that stayed queued for too long.
//
// A job can be recorded without ever reaching the broker (publish failed after the insert)
// or its message can expire on the work queue. The sweep republishes such jobs and refreshes
// their updated_at so the next sweep leaves them alone for another stale period.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSchedule   = "@every 1m"
	DefaultStaleAfter = 5 * time.Minute
	DefaultBatchSize  = 100
)

// Config holds reconciler settings
type Config struct {
	Schedule    string
	StaleAfter  time.Duration
	BatchSize   int
	MaxAttempts int
}

// Reconciler republishes stale queued jobs
type Reconciler struct {
	store  storage.JobStore
	broker broker.Broker
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides the time source used to compute the stale cutoff
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New creates a reconciler, filling unset config fields with defaults
func New(store storage.JobStore, b broker.Broker, cfg Config, logger *slog.Logger, opts ...Option) *Reconciler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}

	r := &Reconciler{
		store:  store,
		broker: b,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on the configured schedule until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("Reconciliation sweep failed",
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciler schedule %q: %w", r.cfg.Schedule, err)
	}

	r.logger.Info("Reconciler started",
		slog.String("schedule", r.cfg.Schedule),
		slog.Duration("stale_after", r.cfg.StaleAfter),
		slog.Int("batch_size", r.cfg.BatchSize),
	)

	c.Start()
	<-ctx.Done()

	// wait for a running sweep to finish
	<-c.Stop().Done()
	r.logger.Info("Reconciler stopped")
	return nil
}

// Sweep republishes one batch of stale queued jobs and returns how many were dispatched.
// Overlapping calls share a single sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	v, err, shared := r.group.Do("sweep", func() (any, error) {
		return r.sweep(ctx)
	})
	if shared {
		r.logger.Debug("Joined a running reconciliation sweep")
	}
	n, _ := v.(int)
	return n, err
}

func (r *Reconciler) sweep(ctx context.Context) (int, error) {
	now := r.now().UTC()
	cutoff := now.Add(-r.cfg.StaleAfter)

	jobs, total, err := r.store.List(ctx,
		storage.ListFilter{Status: domain.StatusQueued, UpdatedBefore: cutoff},
		storage.Pagination{Limit: r.cfg.BatchSize},
		storage.Sort{Field: storage.SortByUpdatedAt, Direction: storage.SortAsc},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale translations: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	r.logger.Info("Found stale queued translations",
		slog.Int("batch", len(jobs)),
		slog.Int("total", total),
		slog.Time("cutoff", cutoff),
	)

	republished := 0
	for _, job := range jobs {
		if err := r.broker.Publish(ctx, job.ToMessage(0, r.cfg.MaxAttempts, now), 0); err != nil {
			// the broker is down; the rest of the batch would fail the same way
			return republished, fmt.Errorf("failed to republish translation %s: %w", job.RequestID, err)
		}
		republished++

		_, err := r.store.UpdateStatus(ctx, job.RequestID, domain.StatusQueued, domain.StatusUpdate{
			ExpectedFrom: []domain.Status{domain.StatusQueued},
		})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidTransition):
			r.logger.Debug("Translation left queued during sweep",
				slog.String("request_id", job.RequestID),
			)
		default:
			r.logger.Warn("Failed to refresh republished translation",
				slog.String("request_id", job.RequestID),
				slog.Any("error", err),
			)
		}
	}

	r.logger.Info("Reconciliation sweep finished",
		slog.Int("republished", republished),
	)
	return republished, nil
}
