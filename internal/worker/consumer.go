package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
)

// workerLoop pulls deliveries from sub one at a time until ctx is done
func (w *Worker) workerLoop(ctx context.Context, workerName string, sub broker.Subscription) {
	defer w.wg.Done()
	defer func() {
		if err := sub.Close(); err != nil {
			w.logger.Warn("Failed to close subscription",
				slog.String("worker_name", workerName),
				slog.Any("error", err),
			)
		}
	}()

	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		delivery, err := sub.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				w.logger.Info("Worker goroutine stopping - context canceled",
					slog.String("worker_name", workerName),
				)
			case errors.Is(err, broker.ErrSubscriptionClosed):
				w.logger.Warn("Worker goroutine stopping - subscription closed",
					slog.String("worker_name", workerName),
				)
			default:
				w.logger.Error("Worker goroutine stopping - receive failed",
					slog.String("worker_name", workerName),
					slog.Any("error", err),
				)
			}
			return
		}

		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("request_id", delivery.MessageID),
			slog.Bool("redelivered", delivery.Redelivered),
		)

		err = w.processDelivery(ctx, delivery)
		w.settle(delivery, err, workerName)
	}
}
