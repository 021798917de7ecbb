// Package worker consumes translation jobs from the broker.
//
// Each of the Concurrency loops owns one prefetch-1 subscription, so a process never holds
// more unacked messages than loops. Records are updated before the delivery is acked; a
// crash in between leads to a redelivery that the store's transition guard absorbs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/retry"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/cuongbtq/translation-dispatch/internal/translator"
	"github.com/google/uuid"
)

// ErrLoopsStopped is returned by Start when every worker loop ended without a shutdown request
var ErrLoopsStopped = errors.New("all worker loops stopped")

const (
	defaultTranslateTimeout = 30 * time.Second
	defaultStoreRetryDelay  = time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Store      storage.JobStore
	Broker     broker.Broker
	Translator translator.Translator
	Policy     retry.Policy

	WorkerID         string
	Concurrency      int
	TranslateTimeout time.Duration

	// StoreRetryDelay is the pause before requeueing a delivery the store could not serve
	StoreRetryDelay time.Duration

	// WriteTimeout bounds record updates made after translation, which run even during shutdown
	WriteTimeout time.Duration

	Now func() time.Time
}

// Worker represents the translation worker
type Worker struct {
	logger     *slog.Logger
	store      storage.JobStore
	broker     broker.Broker
	translator translator.Translator
	policy     retry.Policy

	workerID         string
	concurrency      int
	translateTimeout time.Duration
	storeRetryDelay  time.Duration
	writeTimeout     time.Duration
	now              func() time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:           cfg.Logger,
		store:            cfg.Store,
		broker:           cfg.Broker,
		translator:       cfg.Translator,
		policy:           cfg.Policy,
		workerID:         cfg.WorkerID,
		concurrency:      cfg.Concurrency,
		translateTimeout: cfg.TranslateTimeout,
		storeRetryDelay:  cfg.StoreRetryDelay,
		writeTimeout:     cfg.WriteTimeout,
		now:              cfg.Now,
		stopChan:         make(chan struct{}),
	}

	if w.workerID == "" {
		w.workerID = "worker-" + uuid.NewString()[:8]
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.translateTimeout <= 0 {
		w.translateTimeout = defaultTranslateTimeout
	}
	if w.storeRetryDelay <= 0 {
		w.storeRetryDelay = defaultStoreRetryDelay
	}
	if w.writeTimeout <= 0 {
		w.writeTimeout = defaultWriteTimeout
	}
	if w.now == nil {
		w.now = time.Now
	}

	return w
}

// Start consumes until ctx is cancelled or Stop is called, then waits for in-flight jobs.
// It returns ErrLoopsStopped if the broker closes every subscription first.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("translate_timeout", w.translateTimeout),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := w.spawnWorkerPool(runCtx); err != nil {
		cancel()
		w.wg.Wait()
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	loopsDone := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(loopsDone)
	}()

	select {
	case <-runCtx.Done():
		w.logger.Info("Worker context canceled, waiting for in-flight jobs...")
		<-loopsDone
	case <-loopsDone:
		if runCtx.Err() == nil {
			// every subscription ended on its own, e.g. the broker connection dropped
			return ErrLoopsStopped
		}
	}

	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)

	return nil
}

// Stop asks a running Start to return
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
