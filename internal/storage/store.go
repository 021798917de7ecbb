// Package storage persists translation jobs.
//
// JobStore is implemented by SQLStore for PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).
// Every write touches a single row, and status changes are guarded in the UPDATE itself so
// the transition graph holds under concurrent writers.
package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// Sort field and direction values accepted by List
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByStatus    = "status"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// JobStore is the durable record of translation jobs
type JobStore interface {
	// Create inserts a new job, failing with domain.ErrDuplicateKey when the request id exists
	Create(ctx context.Context, job *domain.TranslationJob) (*domain.TranslationJob, error)

	// FindByRequestID returns the job or domain.ErrNotFound
	FindByRequestID(ctx context.Context, requestID string) (*domain.TranslationJob, error)

	// UpdateStatus moves a job to status, failing with domain.ErrNotFound for unknown ids
	// and domain.ErrInvalidTransition when the current status does not allow the change
	UpdateStatus(ctx context.Context, requestID string, status domain.Status, update domain.StatusUpdate) (*domain.TranslationJob, error)

	// List returns one page of jobs and the total number of jobs matching filter
	List(ctx context.Context, filter ListFilter, page Pagination, sort Sort) ([]*domain.TranslationJob, int, error)

	// CountByStatus returns the number of jobs per status
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
}

// ListFilter narrows List results
type ListFilter struct {
	Status        domain.Status
	UpdatedBefore time.Time
}

// Pagination is a limit/offset window
type Pagination struct {
	Limit  int
	Offset int
}

// Sort orders List results
type Sort struct {
	Field     string
	Direction string
}

// IsValidSortField reports whether field may be used to order List results
func IsValidSortField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// IsValidSortDirection reports whether direction is asc or desc
func IsValidSortDirection(direction string) bool {
	return direction == SortAsc || direction == SortDesc
}

var sortColumns = map[string]string{
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
	SortByStatus:    "status",
}
