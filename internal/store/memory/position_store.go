// Package memory provides an in-process PositionStore for single-session use
// and tests. Writes replace the backing slice wholesale, so a reader holding
// a returned snapshot never observes a half-updated portfolio.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/optfolio/optfolio/internal/domain"
)

// PositionStore implements domain.PositionStore over an in-memory slice.
// Instances are explicitly constructed and injectable; there is no shared
// package-level state.
type PositionStore struct {
	mu        sync.RWMutex
	positions []domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{}
}

// Create appends a new position. Duplicate IDs are rejected.
func (s *PositionStore) Create(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.positions {
		if p.ID == pos.ID {
			return domain.ErrValidation
		}
	}

	next := make([]domain.Position, len(s.positions), len(s.positions)+1)
	copy(next, s.positions)
	s.positions = append(next, pos)
	return nil
}

// Update replaces the position with the same ID.
func (s *PositionStore) Update(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.positions {
		if p.ID == pos.ID {
			next := make([]domain.Position, len(s.positions))
			copy(next, s.positions)
			pos.UpdatedAt = time.Now().UTC()
			next[i] = pos
			s.positions = next
			return nil
		}
	}
	return domain.ErrNotFound
}

// ReplaceAll swaps the entire list in one atomic write.
func (s *PositionStore) ReplaceAll(_ context.Context, positions []domain.Position) error {
	next := make([]domain.Position, len(positions))
	copy(next, positions)

	s.mu.Lock()
	s.positions = next
	s.mu.Unlock()
	return nil
}

// Delete removes a position by ID.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.positions {
		if p.ID == id {
			next := make([]domain.Position, 0, len(s.positions)-1)
			next = append(next, s.positions[:i]...)
			next = append(next, s.positions[i+1:]...)
			s.positions = next
			return nil
		}
	}
	return domain.ErrNotFound
}

// GetByID returns a single position.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

// List returns a copy of the current position list in insertion order.
func (s *PositionStore) List(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
