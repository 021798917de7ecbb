package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/jmoiron/sqlx"
)

const translationColumns = `request_id, source_text, source_language, target_language,
	status, translated_text, error_message, attempts, created_at, updated_at`

// translationRow maps the translations table
type translationRow struct {
	RequestID      string         `db:"request_id"`
	SourceText     string         `db:"source_text"`
	SourceLanguage string         `db:"source_language"`
	TargetLanguage string         `db:"target_language"`
	Status         string         `db:"status"`
	TranslatedText sql.NullString `db:"translated_text"`
	ErrorMessage   sql.NullString `db:"error_message"`
	Attempts       int            `db:"attempts"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *translationRow) toDomain() *domain.TranslationJob {
	job := &domain.TranslationJob{
		RequestID:      r.RequestID,
		SourceText:     r.SourceText,
		SourceLanguage: r.SourceLanguage,
		TargetLanguage: r.TargetLanguage,
		Status:         domain.Status(r.Status),
		Attempts:       r.Attempts,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.TranslatedText.Valid {
		text := r.TranslatedText.String
		job.TranslatedText = &text
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		job.ErrorMessage = &msg
	}
	return job
}

// SQLStore is a JobStore backed by a SQL database through sqlx
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a SQLStore
type Option func(*SQLStore)

// WithClock overrides the time source used for created_at and updated_at
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		s.now = now
	}
}

// NewSQLStore creates a store on top of an open database handle
func NewSQLStore(db *sqlx.DB, logger *slog.Logger, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new job
func (s *SQLStore) Create(ctx context.Context, job *domain.TranslationJob) (*domain.TranslationJob, error) {
	now := s.now().UTC()
	created := *job
	if created.Status == "" {
		created.Status = domain.StatusQueued
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.CreatedAt = created.CreatedAt.UTC()
	created.UpdatedAt = created.CreatedAt
	created.TranslatedText = nil
	created.ErrorMessage = nil

	query := s.db.Rebind(`
		INSERT INTO translations (
			request_id, source_text, source_language, target_language,
			status, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		created.RequestID,
		created.SourceText,
		created.SourceLanguage,
		created.TargetLanguage,
		string(created.Status),
		created.Attempts,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create translation %s: %w", created.RequestID, domain.ErrDuplicateKey)
		}
		return nil, unavailable("create translation", err)
	}

	s.logger.Debug("Translation job created",
		slog.String("request_id", created.RequestID),
		slog.String("status", created.Status.String()),
	)

	return &created, nil
}

// FindByRequestID returns a single job
func (s *SQLStore) FindByRequestID(ctx context.Context, requestID string) (*domain.TranslationJob, error) {
	return s.findByRequestID(ctx, s.db, requestID)
}

func (s *SQLStore) findByRequestID(ctx context.Context, q sqlx.QueryerContext, requestID string) (*domain.TranslationJob, error) {
	query := s.db.Rebind(`SELECT ` + translationColumns + ` FROM translations WHERE request_id = ?`)

	var row translationRow
	if err := sqlx.GetContext(ctx, q, &row, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, fmt.Errorf("translation %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, unavailable("get translation", err)
	}

	return row.toDomain(), nil
}

// UpdateStatus applies a guarded status change.
// The UPDATE only matches rows whose current status may move to status, so two
// writers racing on the same job cannot break the transition graph.
func (s *SQLStore) UpdateStatus(ctx context.Context, requestID string, status domain.Status, update domain.StatusUpdate) (*domain.TranslationJob, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrInvalidTransition)
	}

	expected := update.ExpectedFrom
	if len(expected) == 0 {
		expected = domain.AllowedFrom(status)
	}
	from := make([]string, 0, len(expected))
	for _, st := range expected {
		if domain.IsValidTransition(st, status) {
			from = append(from, string(st))
		}
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("no status may move to %s: %w", status, domain.ErrInvalidTransition)
	}

	var translatedText, errorMessage sql.NullString
	switch status {
	case domain.StatusCompleted:
		translatedText = sql.NullString{String: update.TranslatedText, Valid: true}
	case domain.StatusFailed:
		errorMessage = sql.NullString{String: update.ErrorMessage, Valid: true}
	}

	var attempts sql.NullInt64
	if update.Attempts != nil {
		attempts = sql.NullInt64{Int64: int64(*update.Attempts), Valid: true}
	}

	query, args, err := sqlx.In(`
		UPDATE translations
		SET status = ?,
			translated_text = ?,
			error_message = ?,
			attempts = COALESCE(?, attempts),
			updated_at = ?
		WHERE request_id = ?
		  AND status IN (?)
	`, string(status), translatedText, errorMessage, attempts, s.now().UTC(), requestID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to build status update: %w", err)
	}
	query = s.db.Rebind(query)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin status update", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isMalformedID(err) {
			return nil, fmt.Errorf("translation %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, unavailable("update translation status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, unavailable("read rows affected", err)
	}

	job, err := s.findByRequestID(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		s.logger.Warn("Rejected status transition",
			slog.String("request_id", requestID),
			slog.String("from", job.Status.String()),
			slog.String("to", status.String()),
		)
		return nil, fmt.Errorf("translation %s is %s, cannot move to %s: %w",
			requestID, job.Status, status, domain.ErrInvalidTransition)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit status update", err)
	}

	s.logger.Info("Translation status updated",
		slog.String("request_id", requestID),
		slog.String("status", status.String()),
		slog.Int("attempts", job.Attempts),
	)

	return job, nil
}

// List returns a page of jobs ordered by sort, together with the total match count
func (s *SQLStore) List(ctx context.Context, filter ListFilter, page Pagination, sort Sort) ([]*domain.TranslationJob, int, error) {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[SortByCreatedAt]
	}
	direction := "DESC"
	if strings.EqualFold(sort.Direction, SortAsc) {
		direction = "ASC"
	}

	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	if !filter.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, filter.UpdatedBefore.UTC())
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	countQuery := s.db.Rebind(`SELECT COUNT(*) FROM translations` + whereClause)

	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, unavailable("count translations", err)
	}

	// request_id breaks ties so pages stay stable
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM translations%s ORDER BY %s %s, request_id %s LIMIT ? OFFSET ?`,
		translationColumns, whereClause, column, direction, direction,
	))
	pageArgs := append(append([]interface{}{}, args...), page.Limit, page.Offset)

	var rows []translationRow
	if err := s.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, unavailable("list translations", err)
	}

	jobs := make([]*domain.TranslationJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}

	return jobs, total, nil
}

// CountByStatus returns the number of jobs per status, including zero counts
func (s *SQLStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM translations GROUP BY status`); err != nil {
		return nil, unavailable("count translations by status", err)
	}

	counts := make(map[domain.Status]int, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}

	return counts, nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}
