package domain

// Status is the lifecycle state of a translation job
type Status string

// Translation job status constants
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	// DefaultMaxAttempts is the retry ceiling stamped on new queue messages
	DefaultMaxAttempts = 3

	// CancelledMessage is stored as the error message of a job cancelled while queued
	CancelledMessage = "cancelled by user"

	// MaxSourceTextLength is the maximum number of characters accepted for translation
	MaxSourceTextLength = 5000
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further processing happens for the job
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
