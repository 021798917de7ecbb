package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service *Service
	store   *storage.SQLStore
	broker  *broker.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "producer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, storage.DialectSQLite, logger))

	store := storage.NewSQLStore(db, logger)
	b := broker.NewMemory("translation.jobs")

	return &fixture{
		service: NewService(store, b, Config{MaxAttempts: 3}, logger),
		store:   store,
		broker:  b,
	}
}

func (f *fixture) submit(t *testing.T, text string) *SubmitResult {
	t.Helper()
	result, err := f.service.Submit(context.Background(), SubmitRequest{
		SourceText:     text,
		SourceLanguage: "en",
		TargetLanguage: "pt",
	})
	require.NoError(t, err)
	return result
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.submit(t, "  hello  ")
	assert.Equal(t, domain.StatusQueued, result.Status)
	_, err := uuid.Parse(result.RequestID)
	require.NoError(t, err)

	job, err := f.service.Get(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "hello", job.SourceText)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 0, job.Attempts)

	published := f.broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, result.RequestID, published[0].Message.RequestID)
	assert.Equal(t, "hello", published[0].Message.SourceText)
	assert.Equal(t, 0, published[0].Message.Attempts)
	assert.Equal(t, 3, published[0].Message.MaxAttempts)
	assert.Zero(t, published[0].Delay)
}

func TestService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitRequest
		wantMsg string
	}{
		{
			name:    "same source and target",
			req:     SubmitRequest{SourceText: "hello", SourceLanguage: "en", TargetLanguage: "en"},
			wantMsg: "source_language and target_language must be different",
		},
		{
			name:    "blank text",
			req:     SubmitRequest{SourceText: "   ", SourceLanguage: "en", TargetLanguage: "pt"},
			wantMsg: "source_text is required",
		},
		{
			name:    "text too long",
			req:     SubmitRequest{SourceText: strings.Repeat("á", domain.MaxSourceTextLength+1), SourceLanguage: "en", TargetLanguage: "pt"},
			wantMsg: "source_text must be at most 5000 characters",
		},
		{
			name:    "unsupported source",
			req:     SubmitRequest{SourceText: "hello", SourceLanguage: "xx", TargetLanguage: "pt"},
			wantMsg: `source_language "xx" is not supported`,
		},
		{
			name:    "missing target",
			req:     SubmitRequest{SourceText: "hello", SourceLanguage: "en"},
			wantMsg: "target_language is required",
		},
		{
			name:    "malformed request id",
			req:     SubmitRequest{RequestID: "abc", SourceText: "hello", SourceLanguage: "en", TargetLanguage: "pt"},
			wantMsg: "request_id must be a valid UUID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			result, err := f.service.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Messages(), tt.wantMsg)

			_, total, err := f.store.List(context.Background(), storage.ListFilter{}, storage.Pagination{Limit: 10}, storage.Sort{})
			require.NoError(t, err)
			assert.Zero(t, total, "rejected requests are not recorded")
			assert.Empty(t, f.broker.Published())
		})
	}
}

func TestService_Submit_ExactlyMaxLength(t *testing.T) {
	f := newFixture(t)
	f.submit(t, strings.Repeat("a", domain.MaxSourceTextLength))
}

func TestService_Submit_DuplicateRequestID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	req := SubmitRequest{RequestID: id, SourceText: "hello", SourceLanguage: "en", TargetLanguage: "pt"}
	_, err := f.service.Submit(ctx, req)
	require.NoError(t, err)

	req.SourceText = "world"
	result, err := f.service.Submit(ctx, req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	job, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", job.SourceText)
	assert.Len(t, f.broker.Published(), 1)
}

func TestService_Submit_NormalizesRequestID(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	result, err := f.service.Submit(context.Background(), SubmitRequest{
		RequestID:      strings.ToUpper(id),
		SourceText:     "hello",
		SourceLanguage: "en",
		TargetLanguage: "pt",
	})
	require.NoError(t, err)
	assert.Equal(t, id, result.RequestID)
}

func TestService_UppercaseRequestIDRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()
	upper := strings.ToUpper(id)

	_, err := f.service.Submit(ctx, SubmitRequest{
		RequestID:      upper,
		SourceText:     "hello",
		SourceLanguage: "en",
		TargetLanguage: "pt",
	})
	require.NoError(t, err)

	job, err := f.service.Get(ctx, upper)
	require.NoError(t, err)
	assert.Equal(t, id, job.RequestID)

	job, err = f.service.Cancel(ctx, upper)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)

	_, err = f.service.Submit(ctx, SubmitRequest{
		RequestID:      id,
		SourceText:     "hello",
		SourceLanguage: "en",
		TargetLanguage: "pt",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestService_Submit_BrokerUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.broker.SetPublishError(errors.New("channel closed"))

	result, err := f.service.Submit(ctx, SubmitRequest{SourceText: "hello", SourceLanguage: "en", TargetLanguage: "pt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokerUnavailable)
	require.NotNil(t, result, "the caller still learns the request id")

	job, err := f.service.Get(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job is failed with the cancel message", func(t *testing.T) {
		f := newFixture(t)
		result := f.submit(t, "hello")

		job, err := f.service.Cancel(ctx, result.RequestID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, "cancelled by user", *job.ErrorMessage)
		assert.Nil(t, job.TranslatedText)
	})

	t.Run("processing job conflicts", func(t *testing.T) {
		f := newFixture(t)
		result := f.submit(t, "hello")
		_, err := f.store.UpdateStatus(ctx, result.RequestID, domain.StatusProcessing, domain.StatusUpdate{})
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, result.RequestID)
		assert.ErrorIs(t, err, domain.ErrConflict)

		job, err := f.service.Get(ctx, result.RequestID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, job.Status)
	})

	t.Run("cancelling twice conflicts", func(t *testing.T) {
		f := newFixture(t)
		result := f.submit(t, "hello")
		_, err := f.service.Cancel(ctx, result.RequestID)
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, result.RequestID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Cancel(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Cancel(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestService_Get(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.service.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		f.submit(t, text)
	}

	t.Run("defaults", func(t *testing.T) {
		result, err := f.service.List(ctx, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, DefaultListLimit, result.Limit)
		assert.Equal(t, 0, result.Offset)
		assert.False(t, result.HasMore)
		assert.Len(t, result.Items, 3)
	})

	t.Run("has more", func(t *testing.T) {
		result, err := f.service.List(ctx, ListQuery{Limit: 2, Status: "queued", SortBy: "created_at", SortOrder: "asc"})
		require.NoError(t, err)
		assert.True(t, result.HasMore)
		require.Len(t, result.Items, 2)

		last, err := f.service.List(ctx, ListQuery{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.False(t, last.HasMore)
		assert.Len(t, last.Items, 1)
	})

	invalid := []struct {
		name  string
		query ListQuery
	}{
		{name: "limit too large", query: ListQuery{Limit: 101}},
		{name: "negative limit", query: ListQuery{Limit: -1}},
		{name: "negative offset", query: ListQuery{Offset: -5}},
		{name: "unknown status", query: ListQuery{Status: "done"}},
		{name: "unknown sort field", query: ListQuery{SortBy: "source_text"}},
		{name: "unknown sort order", query: ListQuery{SortOrder: "up"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.List(ctx, tt.query)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "one")
	cancelled := f.submit(t, "two")
	_, err := f.service.Cancel(ctx, cancelled.RequestID)
	require.NoError(t, err)

	stats, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Counts[domain.StatusQueued])
	assert.Equal(t, 1, stats.Counts[domain.StatusFailed])
	require.NotNil(t, stats.Queue)
	assert.Equal(t, "translation.jobs", stats.Queue.Queue)
	assert.Equal(t, 2, stats.Queue.Messages)

	require.NoError(t, f.broker.Close())
	stats, err = f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats.Queue)
	assert.Equal(t, 2, stats.Total)
}

func TestService_CheckHealth(t *testing.T) {
	f := newFixture(t)

	health := f.service.CheckHealth(context.Background())
	assert.True(t, health.Healthy())

	require.NoError(t, f.broker.Close())
	health = f.service.CheckHealth(context.Background())
	assert.False(t, health.Healthy())
	assert.NoError(t, health.StoreErr)
}

func TestService_SupportedLanguages(t *testing.T) {
	f := newFixture(t)
	languages := f.service.SupportedLanguages()
	assert.Len(t, languages, len(domain.SupportedLanguages))
	assert.Contains(t, languages, domain.Language{Code: "pt", Name: "Portuguese"})
}
