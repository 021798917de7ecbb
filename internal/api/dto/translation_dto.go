package dto

import (
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

type CreateTranslationRequest struct {
	RequestID      string `json:"request_id"`
	SourceText     string `json:"source_text" binding:"required"`
	SourceLanguage string `json:"source_language" binding:"required"`
	TargetLanguage string `json:"target_language" binding:"required"`
}

type CreateTranslationResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type ListTranslationsRequest struct {
	Status    string `form:"status"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

type ListTranslationsResponse struct {
	Items      []TranslationDTO `json:"items"`
	Pagination PaginationDTO    `json:"pagination"`
}

type PaginationDTO struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

type TranslationDTO struct {
	RequestID      string  `json:"request_id"`
	Status         string  `json:"status"`
	SourceLanguage string  `json:"source_language"`
	TargetLanguage string  `json:"target_language"`
	SourceText     string  `json:"source_text,omitempty"`
	TranslatedText *string `json:"translated_text,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	Attempts       int     `json:"attempts"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	Message        string  `json:"message"`
}

type CancelTranslationResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Queue  *QueueStatsDTO `json:"queue"`
}

type QueueStatsDTO struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

type LanguageDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type LanguagesResponse struct {
	Languages []LanguageDTO `json:"languages"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type ErrorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// ToTranslationDTO converts a job into its API representation
func ToTranslationDTO(job *domain.TranslationJob) TranslationDTO {
	return TranslationDTO{
		RequestID:      job.RequestID,
		Status:         job.Status.String(),
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		SourceText:     job.SourceText,
		TranslatedText: job.TranslatedText,
		ErrorMessage:   job.ErrorMessage,
		Attempts:       job.Attempts,
		CreatedAt:      job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.UTC().Format(time.RFC3339),
		Message:        job.Message(),
	}
}

// ToStatsResponse reports a zero count for every status, including unused ones
func ToStatsResponse(counts map[domain.Status]int, total int, queue *broker.QueueStats) StatsResponse {
	resp := StatsResponse{
		Counts: make(map[string]int, len(domain.AllStatuses)),
		Total:  total,
	}
	for _, status := range domain.AllStatuses {
		resp.Counts[status.String()] = counts[status]
	}
	if queue != nil {
		resp.Queue = &QueueStatsDTO{
			Name:      queue.Queue,
			Messages:  queue.Messages,
			Consumers: queue.Consumers,
		}
	}
	return resp
}
