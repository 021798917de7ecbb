package producer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/google/uuid"
)

// Validate checks every field and reports all problems at once
func (r SubmitRequest) Validate() error {
	verr := &domain.ValidationError{}

	if r.RequestID != "" {
		if _, err := uuid.Parse(r.RequestID); err != nil {
			verr.Add(errors.New("request_id must be a valid UUID"))
		}
	}

	text := strings.TrimSpace(r.SourceText)
	switch {
	case text == "":
		verr.Add(errors.New("source_text is required"))
	case utf8.RuneCountInString(text) > domain.MaxSourceTextLength:
		verr.Add(fmt.Errorf("source_text must be at most %d characters", domain.MaxSourceTextLength))
	}

	switch {
	case r.SourceLanguage == "":
		verr.Add(errors.New("source_language is required"))
	case !domain.IsSupportedLanguage(r.SourceLanguage):
		verr.Add(fmt.Errorf("source_language %q is not supported", r.SourceLanguage))
	}

	switch {
	case r.TargetLanguage == "":
		verr.Add(errors.New("target_language is required"))
	case !domain.IsSupportedLanguage(r.TargetLanguage):
		verr.Add(fmt.Errorf("target_language %q is not supported", r.TargetLanguage))
	}

	if r.SourceLanguage != "" && r.SourceLanguage == r.TargetLanguage {
		verr.Add(errors.New("source_language and target_language must be different"))
	}

	if verr.HasError() {
		return verr
	}
	return nil
}

// canonicalRequestID parses requestID and returns it in the lowercase form jobs are stored under
func canonicalRequestID(requestID string) (string, error) {
	id, err := uuid.Parse(requestID)
	if err != nil {
		verr := &domain.ValidationError{}
		verr.Add(errors.New("request_id must be a valid UUID"))
		return "", verr
	}
	return id.String(), nil
}
