package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
)

// List paging limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListQuery filters and pages the job listing. Zero values select the defaults.
type ListQuery struct {
	Status    string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ListResult is one page of jobs
type ListResult struct {
	Items   []*domain.TranslationJob
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// normalize applies defaults and validates q
func (q ListQuery) normalize() (ListQuery, error) {
	verr := &domain.ValidationError{}

	if q.Status != "" && !domain.Status(q.Status).IsValid() {
		verr.Add(fmt.Errorf("status %q is not one of queued, processing, completed, failed", q.Status))
	}

	switch {
	case q.Limit == 0:
		q.Limit = DefaultListLimit
	case q.Limit < 1 || q.Limit > MaxListLimit:
		verr.Add(fmt.Errorf("limit must be between 1 and %d", MaxListLimit))
	}

	if q.Offset < 0 {
		verr.Add(errors.New("offset must not be negative"))
	}

	if q.SortBy == "" {
		q.SortBy = storage.SortByCreatedAt
	} else if !storage.IsValidSortField(q.SortBy) {
		verr.Add(fmt.Errorf("sort_by %q is not one of created_at, updated_at, status", q.SortBy))
	}

	if q.SortOrder == "" {
		q.SortOrder = storage.SortDesc
	} else if !storage.IsValidSortDirection(q.SortOrder) {
		verr.Add(fmt.Errorf("sort_order %q is not one of asc, desc", q.SortOrder))
	}

	if verr.HasError() {
		return q, verr
	}
	return q, nil
}

// List returns a page of jobs
func (s *Service) List(ctx context.Context, query ListQuery) (*ListResult, error) {
	q, err := query.normalize()
	if err != nil {
		return nil, err
	}

	items, total, err := s.store.List(ctx,
		storage.ListFilter{Status: domain.Status(q.Status)},
		storage.Pagination{Limit: q.Limit, Offset: q.Offset},
		storage.Sort{Field: q.SortBy, Direction: q.SortOrder},
	)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items:   items,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: q.Offset+len(items) < total,
	}, nil
}

// Stats summarises the job store and the work queue
type Stats struct {
	Counts map[domain.Status]int
	Total  int

	// Queue is nil when the broker could not be inspected
	Queue *broker.QueueStats
}

// Stats counts jobs per status and inspects the work queue.
// An unreachable broker is reported through a nil Queue rather than an error.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Counts: counts}
	for _, n := range counts {
		stats.Total += n
	}

	queue, err := s.broker.Stats(ctx)
	if err != nil {
		s.logger.Warn("Failed to read queue stats",
			slog.Any("error", err),
		)
		return stats, nil
	}
	stats.Queue = &queue

	return stats, nil
}
