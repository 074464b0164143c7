// Package schedules stores time-scheduled automations. The scheduler only
// reads them; rescheduling goes through Advance after successful execution.
package schedules

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

var ErrAutomationNotFound = errors.New("scheduled automation not found")

// Store is the collaborator interface consumed by the coordinator.
type Store interface {
	Automations() []domain.ScheduledAutomation
	ListDue(now time.Time) []domain.ScheduledAutomation
	Advance(id string, next time.Time) error
}

// MemoryStore is a mutex-guarded in-memory Store implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	automations map[string]*domain.ScheduledAutomation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{automations: make(map[string]*domain.ScheduledAutomation)}
}

// Add inserts or replaces the automation.
func (s *MemoryStore) Add(a domain.ScheduledAutomation) {
	s.mu.Lock()
	stored := a
	s.automations[a.ID] = &stored
	s.mu.Unlock()
}

// Remove deletes the automation.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	delete(s.automations, id)
	s.mu.Unlock()
}

// Get returns a copy of the automation.
func (s *MemoryStore) Get(id string) (domain.ScheduledAutomation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.automations[id]
	if !ok {
		return domain.ScheduledAutomation{}, false
	}
	return *a, true
}

// Automations returns copies of all stored automations.
func (s *MemoryStore) Automations() []domain.ScheduledAutomation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduledAutomation, 0, len(s.automations))
	for _, a := range s.automations {
		out = append(out, *a)
	}
	return out
}

// ListDue returns copies of all automations due at the given time.
func (s *MemoryStore) ListDue(now time.Time) []domain.ScheduledAutomation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []domain.ScheduledAutomation
	for _, a := range s.automations {
		if a.Due(now) {
			due = append(due, *a)
		}
	}
	return due
}

// Advance moves the automation's deadline forward. A zero next time
// deactivates it (one-off automations after firing).
func (s *MemoryStore) Advance(id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[id]
	if !ok {
		return errors.Wrap(ErrAutomationNotFound, id)
	}

	if next.IsZero() {
		a.Active = false
		a.NextExecuteAt = nil
		return nil
	}
	a.NextExecuteAt = &next
	return nil
}
