// Package dialer contains the outbound call orchestrator: the queue builder
// that turns validated numbers into persisted queued records, and the
// sequencer that drives each queued call through its lifecycle one at a time.
package dialer

import (
	"context"

	"autodialer/internal/calls"
)

// Store is the slice of call persistence the dialer depends on.
//
// Update reports a missing record as (false, nil); the dialer treats
// out-of-band deletion as a benign no-op.
type Store interface {
	Create(ctx context.Context, number, message string) (calls.Record, error)
	Update(ctx context.Context, id string, status calls.Status, fields calls.UpdateFields) (bool, error)
}

// Task is the transient in-memory handle for one queued call. It exists only
// for the duration of one sequencer run and is owned by that run.
type Task struct {
	ID      string
	Number  string
	Message string
}
