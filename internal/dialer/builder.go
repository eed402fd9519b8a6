package dialer

import (
	"context"

	"autodialer/pkg/logger"
)

// Builder persists accepted numbers as queued call records and returns their
// task handles.
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Enqueue creates one queued record per number, in input order, and returns
// the matching task handles in the same order.
//
// Callers dedupe and cap the batch beforehand; the builder does not re-check.
// Persistence is best-effort per item: a number whose record cannot be
// created is logged and omitted, and the rest of the batch proceeds.
func (b *Builder) Enqueue(ctx context.Context, numbers []string, message string) []Task {
	log := logger.From(ctx)

	tasks := make([]Task, 0, len(numbers))
	for _, number := range numbers {
		rec, err := b.store.Create(ctx, number, message)
		if err != nil {
			log.Warn("call record create failed, dropping number from batch", "number", number, "err", err)
			continue
		}
		tasks = append(tasks, Task{ID: rec.ID, Number: rec.Number, Message: rec.Message})
	}
	return tasks
}
