package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// spawnWorkerPool opens one subscription per loop and starts the loops.
// If any subscription fails, the ones already opened are closed.
func (w *Worker) spawnWorkerPool(ctx context.Context) error {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	subs := make([]broker.Subscription, 0, w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		tag := fmt.Sprintf("%s-%d", w.workerID, i)
		sub, err := w.broker.Subscribe(ctx, tag)
		if err != nil {
			for _, opened := range subs {
				_ = opened.Close()
			}
			return fmt.Errorf("failed to subscribe %s: %w", tag, err)
		}
		subs = append(subs, sub)
	}

	for i, sub := range subs {
		w.wg.Add(1)
		go w.workerLoop(ctx, fmt.Sprintf("%s-%d", w.workerID, i), sub)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
	return nil
}

// settle acks or nacks d according to the processing result
func (w *Worker) settle(d *broker.Delivery, err error, workerName string) {
	switch {
	case err == nil:
		if ackErr := d.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("request_id", d.MessageID),
				slog.Any("error", ackErr),
			)
		}

	case errors.Is(err, errSkipped):
		w.logger.Info("Delivery skipped",
			slog.String("worker_name", workerName),
			slog.String("request_id", d.MessageID),
			slog.String("reason", err.Error()),
		)
		if ackErr := d.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK skipped message",
				slog.String("worker_name", workerName),
				slog.String("request_id", d.MessageID),
				slog.Any("error", ackErr),
			)
		}

	default:
		requeue := shouldRequeue(err)
		w.logger.Error("Job processing failed",
			slog.String("worker_name", workerName),
			slog.String("request_id", d.MessageID),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
		if nackErr := d.Nack(requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("request_id", d.MessageID),
				slog.Any("error", nackErr),
			)
		}
	}
}

// shouldRequeue reports whether a failed delivery may succeed if tried again
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
