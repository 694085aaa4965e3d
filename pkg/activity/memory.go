package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the log in process memory. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Activity
}

// NewMemoryStore creates an empty in-memory activity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends a record to the log. The record's ID and Timestamp are
// assigned here if unset.
func (s *MemoryStore) Record(ctx context.Context, a *Activity) error {
	if a == nil {
		return fmt.Errorf("activity is required")
	}
	if a.Action == "" {
		return fmt.Errorf("activity action is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Outcome == "" {
		a.Outcome = OutcomeSuccess
	}

	// Store a copy so callers cannot mutate the log afterwards.
	stored := *a

	s.mu.Lock()
	s.records = append(s.records, &stored)
	s.mu.Unlock()
	return nil
}

// List returns matching records, newest first.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Activity, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(s.records[i]) {
			cp := *s.records[i]
			matched = append(matched, &cp)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Activity{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountSince returns the number of records at or after the given time.
func (s *MemoryStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.records {
		if !r.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

// Stats summarizes records inside the optional time range.
func (s *MemoryStore) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		RecordsByAction:  make(map[Action]int64),
		RecordsByOutcome: make(map[Outcome]int64),
	}
	if start != nil || end != nil {
		stats.TimeRange = &TimeRange{}
		if start != nil {
			stats.TimeRange.Start = *start
		}
		if end != nil {
			stats.TimeRange.End = *end
		}
	}

	users := make(map[string]struct{})
	for _, r := range s.records {
		if start != nil && r.Timestamp.Before(*start) {
			continue
		}
		if end != nil && r.Timestamp.After(*end) {
			continue
		}
		stats.TotalRecords++
		stats.RecordsByAction[r.Action]++
		stats.RecordsByOutcome[r.Outcome]++
		if r.UserID != "" {
			users[r.UserID] = struct{}{}
		}
		if r.Action == ActionLogin && r.Outcome == OutcomeFailure {
			stats.FailedLogins++
		}
	}
	stats.UniqueUsers = int64(len(users))
	return stats, nil
}

// Close implements Store. The in-memory store holds no resources.
func (s *MemoryStore) Close() error { return nil }
