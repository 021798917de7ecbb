package domain

import "time"

// TranslationJob is the durable record of one translation request
type TranslationJob struct {
	RequestID      string
	SourceText     string
	SourceLanguage string
	TargetLanguage string
	Status         Status
	TranslatedText *string
	ErrorMessage   *string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTranslationJob builds a queued job stamped with now
func NewTranslationJob(requestID, sourceText, sourceLanguage, targetLanguage string, now time.Time) *TranslationJob {
	return &TranslationJob{
		RequestID:      requestID,
		SourceText:     sourceText,
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// StatusUpdate carries the optional fields written together with a status change.
// TranslatedText is only kept for completed jobs and ErrorMessage only for failed jobs.
type StatusUpdate struct {
	TranslatedText string
	ErrorMessage   string

	// Attempts overwrites the recorded attempt count when non-nil
	Attempts *int

	// ExpectedFrom narrows the statuses the job may currently be in.
	// When empty, AllowedFrom(status) is used.
	ExpectedFrom []Status
}

// Message returns a short human readable description of the job state
func (j *TranslationJob) Message() string {
	switch j.Status {
	case StatusQueued:
		return "Translation is queued and waiting to be processed"
	case StatusProcessing:
		return "Translation is currently being processed"
	case StatusCompleted:
		return "Translation completed successfully"
	case StatusFailed:
		return "Translation failed"
	default:
		return ""
	}
}

// ToMessage builds the queue message that dispatches this job
func (j *TranslationJob) ToMessage(attempts, maxAttempts int, now time.Time) *QueueMessage {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &QueueMessage{
		RequestID:      j.RequestID,
		SourceText:     j.SourceText,
		SourceLanguage: j.SourceLanguage,
		TargetLanguage: j.TargetLanguage,
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		Timestamp:      now,
	}
}
