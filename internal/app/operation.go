package app

import (
	"time"

	"futurehub/internal/hub"
)

// Operation tracks one CLI command from start to finish. Its ID tags every
// log line the command writes.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
}

// NewOperation starts an operation named after the CLI command.
func NewOperation(name string, clock hub.Clock) *Operation {
	now := clock.Now().UTC()
	return &Operation{
		ID:      now.Format("20060102T150405Z"),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(clock hub.Clock) time.Duration {
	return clock.Now().Sub(op.Started)
}
