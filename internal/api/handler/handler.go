package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/cuongbtq/translation-dispatch/internal/api/dto"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/producer"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// TranslationService is the producer API consumed by the handlers
type TranslationService interface {
	Submit(ctx context.Context, req producer.SubmitRequest) (*producer.SubmitResult, error)
	Get(ctx context.Context, requestID string) (*domain.TranslationJob, error)
	List(ctx context.Context, query producer.ListQuery) (*producer.ListResult, error)
	Cancel(ctx context.Context, requestID string) (*domain.TranslationJob, error)
	Stats(ctx context.Context) (*producer.Stats, error)
	SupportedLanguages() []domain.Language
	CheckHealth(ctx context.Context) producer.Health
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Service     TranslationService
	ServiceName string
}

// TranslationHandler handles translation-related HTTP requests
type TranslationHandler struct {
	logger      *slog.Logger
	service     TranslationService
	serviceName string
}

// NewTranslationHandler creates a new TranslationHandler instance
func NewTranslationHandler(deps *Dependencies) *TranslationHandler {
	registerJSONFieldNames()

	return &TranslationHandler{
		logger:      deps.Logger,
		service:     deps.Service,
		serviceName: deps.ServiceName,
	}
}

var registerOnce sync.Once

// registerJSONFieldNames makes binding errors report json field names
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindingMessages turns a gin binding error into client-facing messages
func bindingMessages(err error, fallback string) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{fallback}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fe.Field()+" is required")
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return messages
}

// respondError maps domain errors to status codes.
// Only validation details reach the client; everything else gets a generic message.
func (h *TranslationHandler) respondError(c *gin.Context, err error, requestID string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid request",
			Details: verr.Messages(),
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:     "Translation not found",
			RequestID: requestID,
		})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:     "Translation conflicts with its current state",
			RequestID: requestID,
		})
	case errors.Is(err, domain.ErrBrokerUnavailable):
		h.logger.Error("Broker unavailable",
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:     "Translation service is temporarily unavailable",
			RequestID: requestID,
		})
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
