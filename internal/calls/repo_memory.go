package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	order   []string
	records map[string]Record

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		Clock:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, number, message string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Clock().UTC()
	r := Record{
		ID:        uuid.NewString(),
		Number:    number,
		Message:   message,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[r.ID] = r
	s.order = append(s.order, r.ID)
	return r, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	return r, ok, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, status Status, fields UpdateFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	r.Status = status
	if fields.DurationSeconds != nil {
		r.DurationSeconds = fields.DurationSeconds
	}
	if fields.ErrorDetail != nil {
		r.ErrorDetail = fields.ErrorDetail
	}
	if fields.ProviderCallID != nil {
		r.ProviderCallID = fields.ProviderCallID
	}
	r.UpdatedAt = s.Clock().UTC()
	s.records[id] = r
	return true, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.order))
	// Newest first, matching the Postgres ordering.
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.records[s.order[i]])
	}
	return out, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, limit int) (DashboardSnapshot, error) {
	all, _ := s.All(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 25
	}
	snap := DashboardSnapshot{Counts: map[Status]int{}, Total: len(all)}
	for _, r := range all {
		snap.Counts[r.Status]++
	}
	if len(all) > limit {
		all = all[:limit]
	}
	snap.Recent = all
	return snap, nil
}

func (s *MemoryStore) ResetStale(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	detail := staleErrorDetail
	var n int64
	for id, r := range s.records {
		if r.Status != StatusInProgress {
			continue
		}
		r.Status = StatusFailed
		r.ErrorDetail = &detail
		r.UpdatedAt = s.Clock().UTC()
		s.records[id] = r
		n++
	}
	return n, nil
}

// Delete removes a record out-of-band. Tests use it to exercise the
// missing-record no-op paths.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
