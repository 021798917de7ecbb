package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/translation-dispatch/internal/api/dto"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/internal/producer"
	"github.com/gin-gonic/gin"
)

// CreateTranslation handles POST /api/v1/translations
// Records the job, dispatches it and returns without waiting for the translation
func (h *TranslationHandler) CreateTranslation(c *gin.Context) {
	var req dto.CreateTranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid request",
			Details: bindingMessages(err, "request body must be valid JSON"),
		})
		return
	}

	result, err := h.service.Submit(c.Request.Context(), producer.SubmitRequest{
		RequestID:      req.RequestID,
		SourceText:     req.SourceText,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		requestID := req.RequestID
		if result != nil {
			requestID = result.RequestID
		}
		if errors.Is(err, domain.ErrConflict) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:     "A translation with this request_id already exists",
				RequestID: requestID,
			})
			return
		}
		h.respondError(c, err, requestID)
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateTranslationResponse{
		RequestID: result.RequestID,
		Status:    result.Status.String(),
		Message:   "Translation request accepted and queued for processing",
	})
}

// GetTranslation handles GET /api/v1/translations/:request_id
func (h *TranslationHandler) GetTranslation(c *gin.Context) {
	requestID := c.Param("request_id")

	job, err := h.service.Get(c.Request.Context(), requestID)
	if err != nil {
		h.respondError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, dto.ToTranslationDTO(job))
}

// ListTranslations handles GET /api/v1/translations
// Lists jobs with optional status filter, offset pagination and sorting
func (h *TranslationHandler) ListTranslations(c *gin.Context) {
	var req dto.ListTranslationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid request",
			Details: bindingMessages(err, "limit and offset must be integers"),
		})
		return
	}

	result, err := h.service.List(c.Request.Context(), producer.ListQuery{
		Status:    req.Status,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	items := make([]dto.TranslationDTO, len(result.Items))
	for i, job := range result.Items {
		items[i] = dto.ToTranslationDTO(job)
	}

	c.JSON(http.StatusOK, dto.ListTranslationsResponse{
		Items: items,
		Pagination: dto.PaginationDTO{
			Total:   result.Total,
			Limit:   result.Limit,
			Offset:  result.Offset,
			HasMore: result.HasMore,
		},
	})
}

// CancelTranslation handles POST /api/v1/translations/:request_id/cancel
// and DELETE /api/v1/translations/:request_id.
// Only queued translations can be cancelled.
func (h *TranslationHandler) CancelTranslation(c *gin.Context) {
	requestID := c.Param("request_id")

	job, err := h.service.Cancel(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:     "Translation can only be cancelled while queued",
				RequestID: requestID,
			})
			return
		}
		h.respondError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, dto.CancelTranslationResponse{
		RequestID: job.RequestID,
		Status:    job.Status.String(),
		Message:   "Translation cancelled",
	})
}

// GetStats handles GET /api/v1/stats
func (h *TranslationHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, dto.ToStatsResponse(stats.Counts, stats.Total, stats.Queue))
}

// ListLanguages handles GET /api/v1/languages
func (h *TranslationHandler) ListLanguages(c *gin.Context) {
	languages := h.service.SupportedLanguages()

	resp := dto.LanguagesResponse{Languages: make([]dto.LanguageDTO, len(languages))}
	for i, lang := range languages {
		resp.Languages[i] = dto.LanguageDTO{Code: lang.Code, Name: lang.Name}
	}

	c.JSON(http.StatusOK, resp)
}
