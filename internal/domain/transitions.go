package domain

// Transition is a single allowed status change
type Transition struct {
	From Status
	To   Status
}

// ValidTransitions is the forward-only status graph.
//
// processing -> processing covers redelivery after a consumer died before acking,
// completed -> completed makes a duplicate completion idempotent, and
// queued -> queued only refreshes updated_at when a stale job is republished.
// queued -> failed is reserved for cancellation.
var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusQueued},
	{From: StatusQueued, To: StatusProcessing},
	{From: StatusQueued, To: StatusFailed},
	{From: StatusProcessing, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusCompleted, To: StatusCompleted},
}

// IsValidTransition reports whether a job in status from may move to status to
func IsValidTransition(from, to Status) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns every status a job may be in before moving to status to
func AllowedFrom(to Status) []Status {
	var from []Status
	for _, t := range ValidTransitions {
		if t.To == to {
			from = append(from, t.From)
		}
	}
	return from
}
