package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// errSkipped marks deliveries that are acked without doing any work
var errSkipped = errors.New("delivery skipped")

var errEmptyTranslation = errors.New("translator returned empty text")

func skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errSkipped, fmt.Sprintf(format, args...))
}

// processDelivery runs one delivery through the job lifecycle.
// nil and errSkipped mean ack; other errors are settled by shouldRequeue.
func (w *Worker) processDelivery(ctx context.Context, d *broker.Delivery) error {
	msg, err := domain.DecodeQueueMessage(d.Body)
	if err != nil {
		return err
	}

	job, err := w.store.FindByRequestID(ctx, msg.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return skip("translation %s has no record", msg.RequestID)
		}
		w.pause(ctx)
		return domain.NewRetryableError(fmt.Errorf("failed to load translation %s: %w", msg.RequestID, err))
	}

	if job.Status.IsTerminal() {
		return skip("translation %s is already %s", job.RequestID, job.Status)
	}

	attempt := msg.Attempts + 1
	if _, err := w.store.UpdateStatus(ctx, msg.RequestID, domain.StatusProcessing, domain.StatusUpdate{Attempts: &attempt}); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			return skip("translation %s could not be claimed: %v", msg.RequestID, err)
		}
		w.pause(ctx)
		return domain.NewRetryableError(fmt.Errorf("failed to mark translation %s processing: %w", msg.RequestID, err))
	}

	w.logger.Info("Processing translation",
		slog.String("request_id", msg.RequestID),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", msg.MaxAttempts),
	)

	translated, err := w.translate(ctx, msg)
	if err != nil && ctx.Err() != nil {
		// shutdown, not a translation failure: hand the message back without spending an attempt
		return domain.NewRetryableError(fmt.Errorf("translation %s interrupted: %w", msg.RequestID, err))
	}

	// record writes below must finish even if shutdown starts now
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()

	if err != nil {
		return w.handleFailure(writeCtx, msg, attempt, err)
	}
	return w.complete(writeCtx, msg, translated)
}

// translate calls the translator under the per-job timeout
func (w *Worker) translate(ctx context.Context, msg *domain.QueueMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.translateTimeout)
	defer cancel()

	start := time.Now()
	translated, err := w.translator.Translate(ctx, msg.SourceText, msg.SourceLanguage, msg.TargetLanguage)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(translated) == "" {
		return "", errEmptyTranslation
	}

	w.logger.Debug("Translation produced",
		slog.String("request_id", msg.RequestID),
		slog.Duration("duration", time.Since(start)),
	)
	return translated, nil
}

func (w *Worker) complete(ctx context.Context, msg *domain.QueueMessage, translated string) error {
	_, err := w.store.UpdateStatus(ctx, msg.RequestID, domain.StatusCompleted, domain.StatusUpdate{TranslatedText: translated})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			return skip("translation %s could not be completed: %v", msg.RequestID, err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to complete translation %s: %w", msg.RequestID, err))
	}

	w.logger.Info("Translation completed",
		slog.String("request_id", msg.RequestID),
		slog.Int("attempt", msg.Attempts+1),
	)
	return nil
}

// handleFailure schedules the next attempt or fails the job for good
func (w *Worker) handleFailure(ctx context.Context, msg *domain.QueueMessage, attempt int, cause error) error {
	decision := w.policy.Decide(attempt, msg.MaxAttempts)

	if decision.Retry {
		w.logger.Warn("Translation attempt failed, retrying",
			slog.String("request_id", msg.RequestID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", msg.MaxAttempts),
			slog.Duration("retry_after", decision.Delay),
			slog.Any("error", cause),
		)

		next := msg.NextAttempt(w.now().UTC())
		if err := w.broker.Publish(ctx, next, decision.Delay); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to schedule retry of translation %s: %w", msg.RequestID, err))
		}
		return nil
	}

	w.logger.Error("Translation failed permanently",
		slog.String("request_id", msg.RequestID),
		slog.Int("attempts", attempt),
		slog.Any("error", cause),
	)

	_, err := w.store.UpdateStatus(ctx, msg.RequestID, domain.StatusFailed, domain.StatusUpdate{
		ErrorMessage: domain.FailureMessage(cause, attempt),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			return skip("translation %s could not be failed: %v", msg.RequestID, err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to mark translation %s failed: %w", msg.RequestID, err))
	}
	return nil
}

// pause waits before a store failure is handed back to the broker, so a down database
// does not turn into a hot redelivery loop
func (w *Worker) pause(ctx context.Context) {
	timer := time.NewTimer(w.storeRetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
