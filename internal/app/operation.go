package app

import "time"

// Operation tracks the CLI command being run. Its ID tags every log line
// written while the command runs.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name, id string, started time.Time) *Operation {
	return &Operation{
		ID:        id,
		Name:      name,
		StartedAt: started,
		Status:    "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed returns true if Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started, at millisecond precision.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.StartedAt).Truncate(time.Millisecond)
}

// shortID trims a uuid to its first group, enough to tell log runs apart.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
