package domain

import "time"

// Evaluation records the inputs and outcome of one trigger evaluation.
// It is written for audit only; decisions are always computed fresh.
type Evaluation struct {
	ID                 int64
	Profile            string
	EvaluatedAt        time.Time
	LastAttempted      int64
	Newest             int64
	Age                time.Duration
	StableMarker       int64
	LastManifestChange int64
	Provisional        bool
	Build              bool
	Reasons            []string
}

// Run represents a single bump attempt executed against the checkout
type Run struct {
	ID         string
	Profile    string
	Branch     string
	OldValue   string
	NewValue   string
	Status     RunStatus
	Stage      Stage
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
}
