// Package producer accepts translation requests, records them and dispatches them to workers.
//
// A request is first persisted as queued and only then published, so every message a worker
// sees has a record behind it. When publishing fails the record stays queued and the
// reconciler dispatches it later.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/google/uuid"
)

// Config holds producer settings
type Config struct {
	// MaxAttempts is stamped on every new queue message
	MaxAttempts int
}

// Service is the producer side of the dispatch pipeline
type Service struct {
	store       storage.JobStore
	broker      broker.Broker
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source used for queue message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a producer
func NewService(store storage.JobStore, b broker.Broker, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	s := &Service{
		store:       store,
		broker:      b,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest is one translation request.
// RequestID is optional; clients retrying a call send the same id to avoid duplicates.
type SubmitRequest struct {
	RequestID      string
	SourceText     string
	SourceLanguage string
	TargetLanguage string
}

// SubmitResult is returned as soon as the job is recorded
type SubmitResult struct {
	RequestID string
	Status    domain.Status
}

// Submit validates req, records a queued job and publishes it
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	if req.RequestID != "" {
		id, err := canonicalRequestID(req.RequestID)
		if err != nil {
			return nil, err
		}
		requestID = id
	}

	now := s.now().UTC()
	job := domain.NewTranslationJob(
		requestID,
		strings.TrimSpace(req.SourceText),
		req.SourceLanguage,
		req.TargetLanguage,
		now,
	)

	created, err := s.store.Create(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			s.logger.Warn("Duplicate translation request",
				slog.String("request_id", requestID),
			)
			return nil, fmt.Errorf("translation %s already exists: %w: %w", requestID, domain.ErrConflict, err)
		}
		return nil, fmt.Errorf("failed to record translation %s: %w", requestID, err)
	}

	result := &SubmitResult{
		RequestID: created.RequestID,
		Status:    created.Status,
	}

	msg := created.ToMessage(0, s.maxAttempts, now)
	if err := s.broker.Publish(ctx, msg, 0); err != nil {
		s.logger.Error("Failed to dispatch translation, left queued for reconciliation",
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		if !errors.Is(err, domain.ErrBrokerUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrBrokerUnavailable, err)
		}
		return result, fmt.Errorf("translation %s recorded but not dispatched: %w", requestID, err)
	}

	s.logger.Info("Translation submitted",
		slog.String("request_id", requestID),
		slog.String("source_language", created.SourceLanguage),
		slog.String("target_language", created.TargetLanguage),
		slog.Int("max_attempts", s.maxAttempts),
	)

	return result, nil
}

// Get returns one job
func (s *Service) Get(ctx context.Context, requestID string) (*domain.TranslationJob, error) {
	requestID, err := canonicalRequestID(requestID)
	if err != nil {
		return nil, err
	}
	return s.store.FindByRequestID(ctx, requestID)
}

// Cancel fails a job that no worker has claimed yet
func (s *Service) Cancel(ctx context.Context, requestID string) (*domain.TranslationJob, error) {
	requestID, err := canonicalRequestID(requestID)
	if err != nil {
		return nil, err
	}

	job, err := s.store.UpdateStatus(ctx, requestID, domain.StatusFailed, domain.StatusUpdate{
		ErrorMessage: domain.CancelledMessage,
		ExpectedFrom: []domain.Status{domain.StatusQueued},
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("translation %s can only be cancelled while queued: %w: %w", requestID, domain.ErrConflict, err)
		}
		return nil, err
	}

	s.logger.Info("Translation cancelled",
		slog.String("request_id", requestID),
	)
	return job, nil
}

// SupportedLanguages lists the accepted language codes with their English names
func (s *Service) SupportedLanguages() []domain.Language {
	return domain.ListLanguages()
}

// Health describes the reachability of the store and broker
type Health struct {
	StoreErr        error
	BrokerConnected bool
}

// Healthy reports whether both dependencies are reachable
func (h Health) Healthy() bool {
	return h.StoreErr == nil && h.BrokerConnected
}

// CheckHealth pings the store and inspects the broker connection
func (s *Service) CheckHealth(ctx context.Context) Health {
	return Health{
		StoreErr:        s.store.Ping(ctx),
		BrokerConnected: s.broker.IsConnected(),
	}
}
