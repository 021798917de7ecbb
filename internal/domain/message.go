package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueueMessage is the broker payload for one processing attempt.
// The retry counter travels in the body so it survives broker restarts.
type QueueMessage struct {
	RequestID      string    `json:"requestId"`
	SourceText     string    `json:"sourceText"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"maxAttempts"`
	Timestamp      time.Time `json:"timestamp"`
}

// NextAttempt returns a copy of the message for the following retry
func (m *QueueMessage) NextAttempt(now time.Time) *QueueMessage {
	next := *m
	next.Attempts = m.Attempts + 1
	next.Timestamp = now
	return &next
}

// Encode serializes the message to its JSON wire format
func (m *QueueMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue message: %w", err)
	}
	return body, nil
}

// DecodeQueueMessage parses and validates a JSON wire body
func DecodeQueueMessage(body []byte) (*QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if _, err := uuid.Parse(msg.RequestID); err != nil {
		return nil, fmt.Errorf("%w: requestId %q is not a UUID", ErrInvalidPayload, msg.RequestID)
	}

	if strings.TrimSpace(msg.SourceText) == "" {
		return nil, fmt.Errorf("%w: sourceText is empty", ErrInvalidPayload)
	}

	if msg.Attempts < 0 {
		return nil, fmt.Errorf("%w: attempts must not be negative", ErrInvalidPayload)
	}

	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = DefaultMaxAttempts
	}

	return &msg, nil
}
