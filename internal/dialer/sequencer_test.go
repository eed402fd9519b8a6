package dialer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autodialer/internal/calls"
	"autodialer/internal/telephony"
)

type dialOutcome struct {
	res telephony.PlaceCallResult
	err error
}

// fakeProvider scripts one outcome per destination number and records the
// order of dispatches.
type fakeProvider struct {
	mu       sync.Mutex
	outcomes map[string]dialOutcome
	dialed   []string
	onDial   func(number string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{outcomes: map[string]dialOutcome{}}
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	p.mu.Lock()
	p.dialed = append(p.dialed, req.To)
	out, ok := p.outcomes[req.To]
	hook := p.onDial
	p.mu.Unlock()

	if hook != nil {
		hook(req.To)
	}
	if !ok {
		return telephony.PlaceCallResult{Success: true, ProviderCallID: "CA-" + req.To}, nil
	}
	return out.res, out.err
}

func (p *fakeProvider) dialedNumbers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.dialed))
	copy(out, p.dialed)
	return out
}

type transition struct {
	id     string
	status calls.Status
}

// recordingStore wraps the memory store and records every status transition.
type recordingStore struct {
	*calls.MemoryStore
	mu          sync.Mutex
	transitions []transition
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: calls.NewMemoryStore()}
}

func (s *recordingStore) Update(ctx context.Context, id string, status calls.Status, fields calls.UpdateFields) (bool, error) {
	ok, err := s.MemoryStore.Update(ctx, id, status, fields)
	if ok {
		s.mu.Lock()
		s.transitions = append(s.transitions, transition{id: id, status: status})
		s.mu.Unlock()
	}
	return ok, err
}

func newTestSequencer(store Store, provider telephony.VoiceProvider) (*Sequencer, *[]time.Duration) {
	seq := NewSequencer(store, provider, 2500*time.Millisecond)
	var slept []time.Duration
	seq.sleep = func(ctx context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	return seq, &slept
}

func enqueueNumbers(t *testing.T, store Store, numbers ...string) []Task {
	t.Helper()
	tasks := NewBuilder(store).Enqueue(context.Background(), numbers, "test message")
	if len(tasks) != len(numbers) {
		t.Fatalf("expected %d tasks, got %d", len(numbers), len(tasks))
	}
	return tasks
}

func TestSequencer_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002", "+15005550003")

	dur := 9
	provider.outcomes["+15005550001"] = dialOutcome{
		res: telephony.PlaceCallResult{Success: true, ProviderCallID: "CA1", DurationSeconds: &dur},
	}
	provider.outcomes["+15005550002"] = dialOutcome{
		err: &telephony.RejectionError{Reason: "refused by safety gate"},
	}
	provider.outcomes["+15005550003"] = dialOutcome{
		res: telephony.PlaceCallResult{Success: false, ErrorDetail: "\x1b[31mcarrier unreachable\x1b[0m"},
	}

	seq, slept := newTestSequencer(store, provider)
	seq.Run(ctx, tasks)

	r1, _, _ := store.Get(ctx, tasks[0].ID)
	if r1.Status != calls.StatusSuccess {
		t.Fatalf("task 1: expected success, got %s", r1.Status)
	}
	if r1.DurationSeconds == nil || *r1.DurationSeconds != 9 {
		t.Fatalf("task 1: expected duration 9")
	}
	if r1.ProviderCallID == nil || *r1.ProviderCallID != "CA1" {
		t.Fatalf("task 1: expected provider call id CA1")
	}
	if r1.ErrorDetail != nil {
		t.Fatalf("task 1: expected no error detail")
	}

	r2, _, _ := store.Get(ctx, tasks[1].ID)
	if r2.Status != calls.StatusSkipped {
		t.Fatalf("task 2: expected skipped, got %s", r2.Status)
	}
	if r2.ErrorDetail == nil || *r2.ErrorDetail != "refused by safety gate" {
		t.Fatalf("task 2: expected rejection reason, got %v", r2.ErrorDetail)
	}
	if r2.DurationSeconds != nil || r2.ProviderCallID != nil {
		t.Fatalf("task 2: success-only fields must stay unset")
	}

	r3, _, _ := store.Get(ctx, tasks[2].ID)
	if r3.Status != calls.StatusFailed {
		t.Fatalf("task 3: expected failed, got %s", r3.Status)
	}
	if r3.ErrorDetail == nil || *r3.ErrorDetail != "carrier unreachable" {
		t.Fatalf("task 3: expected ANSI-stripped detail, got %v", r3.ErrorDetail)
	}

	// One pacing pause per task, each the full configured interval.
	if len(*slept) != 3 {
		t.Fatalf("expected 3 pacing pauses, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != 2500*time.Millisecond {
			t.Fatalf("expected 2.5s pacing, got %v", d)
		}
	}
}

func TestSequencer_ProcessesTasksInOrder(t *testing.T) {
	store := newRecordingStore()
	provider := newFakeProvider()

	numbers := []string{"+15005550001", "+15005550002", "+15005550003", "+15005550004"}
	tasks := enqueueNumbers(t, store, numbers...)

	seq, _ := newTestSequencer(store, provider)
	seq.Run(context.Background(), tasks)

	dialed := provider.dialedNumbers()
	if len(dialed) != len(numbers) {
		t.Fatalf("expected every task dialed exactly once, got %d", len(dialed))
	}
	for i, n := range numbers {
		if dialed[i] != n {
			t.Fatalf("dial order broken at %d: got %s want %s", i, dialed[i], n)
		}
	}
}

func TestSequencer_TransitionsAreForwardOnly(t *testing.T) {
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002")

	seq, _ := newTestSequencer(store, provider)
	seq.Run(context.Background(), tasks)

	perTask := map[string][]calls.Status{}
	for _, tr := range store.transitions {
		perTask[tr.id] = append(perTask[tr.id], tr.status)
	}
	for _, task := range tasks {
		got := perTask[task.ID]
		if len(got) != 2 {
			t.Fatalf("expected exactly 2 transitions per task, got %v", got)
		}
		if got[0] != calls.StatusInProgress {
			t.Fatalf("expected in_progress first, got %v", got)
		}
		if !got[1].Terminal() {
			t.Fatalf("expected terminal last, got %v", got)
		}
	}
}

func TestSequencer_AbandonsDeletedRecordSilently(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002")
	store.Delete(tasks[0].ID)

	seq, _ := newTestSequencer(store, provider)
	seq.Run(ctx, tasks)

	dialed := provider.dialedNumbers()
	if len(dialed) != 1 || dialed[0] != "+15005550002" {
		t.Fatalf("expected only the surviving task dialed, got %v", dialed)
	}
	r, _, _ := store.Get(ctx, tasks[1].ID)
	if r.Status != calls.StatusSuccess {
		t.Fatalf("expected batch to continue past the abandoned task, got %s", r.Status)
	}
}

func TestSequencer_FinalizeAfterDeletionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002")

	// Record vanishes while the provider is on the wire.
	provider.onDial = func(number string) {
		if number == "+15005550001" {
			store.Delete(tasks[0].ID)
		}
	}

	seq, _ := newTestSequencer(store, provider)
	seq.Run(ctx, tasks)

	if _, found, _ := store.Get(ctx, tasks[0].ID); found {
		t.Fatalf("expected record to stay deleted")
	}
	r, _, _ := store.Get(ctx, tasks[1].ID)
	if r.Status != calls.StatusSuccess {
		t.Fatalf("expected next task processed, got %s", r.Status)
	}
}

func TestSequencer_UnexpectedProviderErrorFailsTaskOnly(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002")
	provider.outcomes["+15005550001"] = dialOutcome{err: errors.New("connection reset")}

	seq, _ := newTestSequencer(store, provider)
	seq.Run(ctx, tasks)

	r1, _, _ := store.Get(ctx, tasks[0].ID)
	if r1.Status != calls.StatusFailed {
		t.Fatalf("expected failed, got %s", r1.Status)
	}
	if r1.ErrorDetail == nil || *r1.ErrorDetail != "connection reset" {
		t.Fatalf("expected error detail, got %v", r1.ErrorDetail)
	}
	r2, _, _ := store.Get(ctx, tasks[1].ID)
	if !r2.Status.Terminal() {
		t.Fatalf("expected batch to continue, got %s", r2.Status)
	}
}

func TestSequencer_CancelledContextLeavesRestQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newRecordingStore()
	provider := newFakeProvider()

	tasks := enqueueNumbers(t, store, "+15005550001", "+15005550002", "+15005550003")

	seq, _ := newTestSequencer(store, provider)
	provider.onDial = func(number string) {
		if number == "+15005550001" {
			cancel()
		}
	}
	seq.Run(ctx, tasks)

	r1, _, _ := store.Get(context.Background(), tasks[0].ID)
	if !r1.Status.Terminal() {
		t.Fatalf("expected first task finished, got %s", r1.Status)
	}
	for _, task := range tasks[1:] {
		r, _, _ := store.Get(context.Background(), task.ID)
		if r.Status != calls.StatusQueued {
			t.Fatalf("expected task %s left queued, got %s", task.ID, r.Status)
		}
	}
}
