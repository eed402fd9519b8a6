package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autodialer/internal/calls"
	"autodialer/internal/phone"
	"autodialer/internal/telephony"
	"autodialer/pkg/logger"
)

// Sequencer executes a batch of queued calls strictly one at a time.
//
// Sequential execution is the rate-limit mechanism: with a single in-flight
// attempt and a fixed pause before each dispatch, the external provider's
// call rate can never be exceeded, and per-record mutation needs no locking.
type Sequencer struct {
	store    Store
	provider telephony.VoiceProvider

	// pacing is the minimum spacing between consecutive dispatch attempts.
	pacing time.Duration

	// sleep is injectable so tests can observe pacing without waiting.
	sleep func(ctx context.Context, d time.Duration)
}

func NewSequencer(store Store, provider telephony.VoiceProvider, pacing time.Duration) *Sequencer {
	return &Sequencer{
		store:    store,
		provider: provider,
		pacing:   pacing,
		sleep:    sleepCtx,
	}
}

// Run processes every task in order. Each processed task ends in exactly one
// terminal state; no per-task problem ever aborts the remainder of the batch.
// Cancelling ctx stops the run between tasks, leaving later tasks queued.
func (s *Sequencer) Run(ctx context.Context, tasks []Task) {
	log := logger.From(ctx)

	for _, task := range tasks {
		if ctx.Err() != nil {
			log.Warn("sequencer stopped early, remaining tasks stay queued", "task_id", task.ID)
			return
		}
		s.processTask(ctx, task)
	}
}

func (s *Sequencer) processTask(ctx context.Context, task Task) {
	log := logger.From(ctx)

	defer func() {
		if p := recover(); p != nil {
			detail := fmt.Sprintf("internal error: %v", p)
			_, _ = s.store.Update(ctx, task.ID, calls.StatusFailed, calls.UpdateFields{ErrorDetail: &detail})
			log.Error("task panicked", "task_id", task.ID, "panic", p)
		}
	}()

	ok, err := s.store.Update(ctx, task.ID, calls.StatusInProgress, calls.UpdateFields{})
	if err != nil {
		log.Error("mark in_progress failed", "task_id", task.ID, "err", err)
		return
	}
	if !ok {
		// Record deleted out-of-band; abandon silently.
		return
	}

	s.sleep(ctx, s.pacing)

	res, err := s.provider.PlaceCall(ctx, telephony.PlaceCallRequest{To: task.Number, Message: task.Message})

	var rejected *telephony.RejectionError
	switch {
	case errors.As(err, &rejected):
		// A late safety refusal is softer than a failed attempt: the call
		// was never placed. Recorded as skipped, batch continues.
		detail := rejected.Reason
		_, _ = s.store.Update(ctx, task.ID, calls.StatusSkipped, calls.UpdateFields{ErrorDetail: &detail})
		log.Info("call skipped", "task_id", task.ID, "number", task.Number, "reason", detail)
	case err != nil:
		detail := phone.StripANSI(err.Error())
		_, _ = s.store.Update(ctx, task.ID, calls.StatusFailed, calls.UpdateFields{ErrorDetail: &detail})
		log.Error("call dispatch failed", "task_id", task.ID, "err", err)
	default:
		s.finalize(ctx, task.ID, res)
	}
}

// finalize maps a transport result onto the record's terminal state. This is
// the only place success or failed is assigned. A missing record is a no-op.
func (s *Sequencer) finalize(ctx context.Context, taskID string, res telephony.PlaceCallResult) {
	log := logger.From(ctx)

	if res.Success {
		fields := calls.UpdateFields{DurationSeconds: res.DurationSeconds}
		if res.ProviderCallID != "" {
			fields.ProviderCallID = &res.ProviderCallID
		}
		if _, err := s.store.Update(ctx, taskID, calls.StatusSuccess, fields); err != nil {
			log.Error("finalize success failed", "task_id", taskID, "err", err)
		}
		return
	}

	detail := phone.StripANSI(res.ErrorDetail)
	if _, err := s.store.Update(ctx, taskID, calls.StatusFailed, calls.UpdateFields{ErrorDetail: &detail}); err != nil {
		log.Error("finalize failure failed", "task_id", taskID, "err", err)
	}
}

// sleepCtx pauses without blocking past ctx cancellation.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
