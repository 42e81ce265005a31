package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/trialscope/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // key: scenario ID
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new scenario record.
func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if rec.Scenario.ID == "" {
		return model.NewBadRequestError("scenario ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Scenario.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("scenario %q already exists", rec.Scenario.ID),
		)
	}

	rec = rec.Clone()
	now := s.now()
	if rec.Scenario.CreatedAt.IsZero() {
		rec.Scenario.CreatedAt = now
	}
	rec.Scenario.UpdatedAt = now
	if rec.Scenario.Version == 0 {
		rec.Scenario.Version = 1
	}
	s.records[rec.Scenario.ID] = rec
	return nil
}

// Get retrieves a copy of a scenario record.
func (s *MemoryStore) Get(_ context.Context, scenarioID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[scenarioID]
	if !exists {
		return Record{}, model.NewNotFoundError(
			fmt.Sprintf("scenario %q not found", scenarioID),
		)
	}
	return rec.Clone(), nil
}

// Update persists a record with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.Scenario.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("scenario %q not found", rec.Scenario.ID),
		)
	}

	// Optimistic lock check.
	if existing.Scenario.Version != rec.Scenario.Version {
		return model.NewConflictError(
			fmt.Sprintf("scenario %q version conflict (expected %d, got %d)", rec.Scenario.ID, rec.Scenario.Version, existing.Scenario.Version),
		)
	}

	rec = rec.Clone()
	rec.Scenario.Version++
	rec.Scenario.UpdatedAt = s.now()
	s.records[rec.Scenario.ID] = rec
	return nil
}

// List returns all scenarios ordered by creation time, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]model.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Scenario, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec.Scenario.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Exists reports whether a scenario is stored.
func (s *MemoryStore) Exists(scenarioID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[scenarioID]
	return ok
}

// Len returns the number of stored scenarios. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// HealthCheck reports whether the store can serve requests.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return model.NewInternalError()
	}
	return nil
}
