package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuongbtq/translation-dispatch/internal/api/dto"
	"github.com/cuongbtq/translation-dispatch/internal/api/handler"
	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/producer"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	store  *storage.SQLStore
	broker *broker.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, storage.DialectSQLite, logger))

	store := storage.NewSQLStore(db, logger)
	b := broker.NewMemory("translation.jobs")

	engine := SetupRouter(&handler.Dependencies{
		Logger:      logger,
		Service:     producer.NewService(store, b, producer.Config{MaxAttempts: 3}, logger),
		ServiceName: "translation-api-service",
	})

	return &testServer{engine: engine, store: store, broker: b}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T, text string) dto.CreateTranslationResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/translations",
		`{"source_text":"`+text+`","source_language":"en","target_language":"pt"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp dto.CreateTranslationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateTranslation(t *testing.T) {
	s := newTestServer(t)

	created := s.create(t, "hello")
	assert.Equal(t, "queued", created.Status)
	assert.NotEmpty(t, created.Message)
	_, err := uuid.Parse(created.RequestID)
	require.NoError(t, err)

	published := s.broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, created.RequestID, published[0].Message.RequestID)

	w := s.do(t, http.MethodGet, "/api/v1/translations/"+created.RequestID, "")
	require.Equal(t, http.StatusOK, w.Code)
	job := decode[dto.TranslationDTO](t, w)
	assert.Equal(t, created.RequestID, job.RequestID)
	assert.Equal(t, "queued", job.Status)
	assert.Equal(t, "hello", job.SourceText)
	assert.Equal(t, "en", job.SourceLanguage)
	assert.Equal(t, "pt", job.TargetLanguage)
	assert.Nil(t, job.TranslatedText)
	assert.Nil(t, job.ErrorMessage)
	assert.Zero(t, job.Attempts)
	assert.Equal(t, "Translation is queued and waiting to be processed", job.Message)
}

func TestCreateTranslation_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details []string
	}{
		{
			name:    "malformed json",
			body:    `{"source_text":`,
			details: []string{"request body must be valid JSON"},
		},
		{
			name:    "missing fields",
			body:    `{"source_language":"en"}`,
			details: []string{"source_text is required", "target_language is required"},
		},
		{
			name:    "same language",
			body:    `{"source_text":"hello","source_language":"en","target_language":"en"}`,
			details: []string{"source_language and target_language must be different"},
		},
		{
			name:    "unsupported language",
			body:    `{"source_text":"hello","source_language":"en","target_language":"xx"}`,
			details: []string{`target_language "xx" is not supported`},
		},
		{
			name:    "blank text",
			body:    `{"source_text":"   ","source_language":"en","target_language":"pt"}`,
			details: []string{"source_text is required"},
		},
		{
			name:    "bad request id",
			body:    `{"request_id":"abc","source_text":"hello","source_language":"en","target_language":"pt"}`,
			details: []string{"request_id must be a valid UUID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			w := s.do(t, http.MethodPost, "/api/v1/translations", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decode[dto.ErrorResponse](t, w)
			for _, detail := range tt.details {
				assert.Contains(t, resp.Details, detail)
			}
			assert.Empty(t, s.broker.Published())
		})
	}
}

func TestCreateTranslation_DuplicateRequestID(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()
	body := `{"request_id":"` + id + `","source_text":"hello","source_language":"en","target_language":"pt"}`

	w := s.do(t, http.MethodPost, "/api/v1/translations", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, id, decode[dto.CreateTranslationResponse](t, w).RequestID)

	w = s.do(t, http.MethodPost, "/api/v1/translations", body)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, id, decode[dto.ErrorResponse](t, w).RequestID)
	assert.Len(t, s.broker.Published(), 1)
}

func TestCreateTranslation_BrokerUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.broker.SetPublishError(errors.New("connection refused"))

	w := s.do(t, http.MethodPost, "/api/v1/translations",
		`{"source_text":"hello","source_language":"en","target_language":"pt"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := decode[dto.ErrorResponse](t, w)
	require.NotEmpty(t, resp.RequestID)
	assert.NotContains(t, resp.Error, "connection refused")

	// recorded and left queued for the reconciler
	job, err := s.store.FindByRequestID(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestGetTranslation_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/translations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/translations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelTranslation(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			s := newTestServer(t)
			created := s.create(t, "hello")

			path := "/api/v1/translations/" + created.RequestID
			if method == http.MethodPost {
				path += "/cancel"
			}

			w := s.do(t, method, path, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decode[dto.CancelTranslationResponse](t, w)
			assert.Equal(t, "failed", resp.Status)

			w = s.do(t, http.MethodGet, "/api/v1/translations/"+created.RequestID, "")
			job := decode[dto.TranslationDTO](t, w)
			require.NotNil(t, job.ErrorMessage)
			assert.Equal(t, "cancelled by user", *job.ErrorMessage)

			w = s.do(t, method, path, "")
			assert.Equal(t, http.StatusConflict, w.Code)
		})
	}
}

func TestCancelTranslation_Processing(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, "hello")
	_, err := s.store.UpdateStatus(context.Background(), created.RequestID, domain.StatusProcessing, domain.StatusUpdate{})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/translations/"+created.RequestID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/translations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTranslations(t *testing.T) {
	s := newTestServer(t)
	for _, text := range []string{"one", "two", "three"} {
		s.create(t, text)
	}

	w := s.do(t, http.MethodGet, "/api/v1/translations?limit=2&sort_order=asc", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ListTranslationsResponse](t, w)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, dto.PaginationDTO{Total: 3, Limit: 2, Offset: 0, HasMore: true}, resp.Pagination)

	w = s.do(t, http.MethodGet, "/api/v1/translations?status=completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.ListTranslationsResponse](t, w)
	assert.Empty(t, resp.Items)
	assert.NotNil(t, resp.Items)
	assert.Zero(t, resp.Pagination.Total)
}

func TestListTranslations_BadQuery(t *testing.T) {
	s := newTestServer(t)

	for _, query := range []string{"limit=abc", "limit=500", "offset=-1", "status=cancelled", "sort_by=source_text", "sort_order=up"} {
		t.Run(query, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/v1/translations?"+query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestGetStats(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "one")
	created := s.create(t, "two")
	_, err := s.store.UpdateStatus(context.Background(), created.RequestID, domain.StatusProcessing, domain.StatusUpdate{})
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.StatsResponse](t, w)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, map[string]int{"queued": 1, "processing": 1, "completed": 0, "failed": 0}, resp.Counts)
	require.NotNil(t, resp.Queue)
	assert.Equal(t, "translation.jobs", resp.Queue.Name)
	assert.Equal(t, 2, resp.Queue.Messages)
}

func TestGetStats_BrokerClosed(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.broker.Close())

	w := s.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[dto.StatsResponse](t, w).Queue)
}

func TestListLanguages(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/languages", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.LanguagesResponse](t, w)
	assert.Len(t, resp.Languages, len(domain.SupportedLanguages))
	assert.Contains(t, resp.Languages, dto.LanguageDTO{Code: "pt", Name: "Portuguese"})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "translation-api-service", decode[dto.HealthResponse](t, w).Service)

	w = s.do(t, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]string{"database": "ok", "broker": "connected"}, resp.Checks)

	require.NoError(t, s.broker.Close())
	w = s.do(t, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = decode[dto.HealthResponse](t, w)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.Checks["broker"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodOptions, "/api/v1/translations", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
