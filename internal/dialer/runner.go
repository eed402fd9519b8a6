package dialer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"autodialer/pkg/logger"
	"autodialer/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	dialSlotKey = "autodialer:dial_slot"

	// dialSlotTTL bounds how long a crashed process can hold the slot.
	dialSlotTTL = 15 * time.Minute

	slotRetryInterval = 2 * time.Second
)

// Runner supervises fire-and-forget sequencer batches.
//
// Intake handlers hand a batch off and respond immediately; the batch runs on
// its own goroutine, detached from the request context. On shutdown, Drain
// waits for in-flight batches instead of silently abandoning them.
//
// When a Redis client is configured, a dial slot (limit 1) is held for the
// duration of each batch so multiple API instances never dial concurrently.
type Runner struct {
	seq *Sequencer
	rdb *redis.Client
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(seq *Sequencer, rdb *redis.Client, log *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = slog.Default()
	}
	return &Runner{seq: seq, rdb: rdb, log: log, ctx: ctx, cancel: cancel}
}

// Dispatch schedules a batch and returns immediately.
func (r *Runner) Dispatch(tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := logger.With(r.ctx, r.log)
		proceed, held := r.acquireSlot(ctx)
		if !proceed {
			r.log.Warn("dial slot not acquired, batch stays queued", "tasks", len(tasks))
			return
		}
		if held {
			defer r.releaseSlot()
		}

		r.log.Info("dial batch started", "tasks", len(tasks))
		r.seq.Run(ctx, tasks)
		r.log.Info("dial batch finished", "tasks", len(tasks))
	}()
}

// Drain blocks until in-flight batches complete or ctx expires. On expiry the
// runner is cancelled so batches stop between tasks; unprocessed records stay
// queued durably.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

// acquireSlot waits for the cross-process dial slot. Redis being unavailable
// degrades to local-only pacing: a logged warning, not a dropped batch.
// The second return value reports whether a slot is actually held and must
// be released.
func (r *Runner) acquireSlot(ctx context.Context) (proceed, held bool) {
	if r.rdb == nil {
		return true, false
	}

	for {
		ok, err := utils.AcquireDialSlot(ctx, r.rdb, dialSlotKey, 1, dialSlotTTL)
		if err != nil {
			r.log.Warn("dial slot acquire failed, proceeding with local pacing only", "err", err)
			return true, false
		}
		if ok {
			return true, true
		}
		select {
		case <-ctx.Done():
			return false, false
		case <-time.After(slotRetryInterval):
		}
	}
}

func (r *Runner) releaseSlot() {
	if r.rdb == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := utils.ReleaseDialSlot(releaseCtx, r.rdb, dialSlotKey); err != nil {
		r.log.Warn("dial slot release failed", "err", err)
	}
}
