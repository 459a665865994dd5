package store

import (
	"context"
	"sync"
	"time"

	"github.com/darrenwatt/truthy/internal/domain"
)

// MockPostRepository is a hand-written, in-memory implementation of
// PostRepository used in unit tests. No mock-generation library needed.
type MockPostRepository struct {
	mu      sync.RWMutex
	records map[string]domain.ProcessedPost

	// Optional error overrides — set in tests to simulate failure paths.
	HasErr           error
	MarkProcessedErr error

	// Call counters for assertion.
	HasCalls  int
	MarkCalls []string
}

func NewMockPostRepository() *MockPostRepository {
	return &MockPostRepository{records: make(map[string]domain.ProcessedPost)}
}

// Seed inserts a record directly, bypassing the MarkProcessed bookkeeping.
func (m *MockPostRepository) Seed(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = domain.ProcessedPost{ID: id}
}

func (m *MockPostRepository) Has(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HasCalls++
	if m.HasErr != nil {
		return false, m.HasErr
	}
	_, ok := m.records[id]
	return ok, nil
}

func (m *MockPostRepository) MarkProcessed(_ context.Context, st domain.Status, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkCalls = append(m.MarkCalls, st.ID)
	if m.MarkProcessedErr != nil {
		return m.MarkProcessedErr
	}
	if st.ID == "" {
		return domain.ErrInvalidStatus
	}
	if _, ok := m.records[st.ID]; ok {
		return domain.ErrAlreadyProcessed
	}
	m.records[st.ID] = BuildRecord(st, sentAt)
	return nil
}

// Record returns the stored record for id, if any.
func (m *MockPostRepository) Record(id string) (domain.ProcessedPost, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}
