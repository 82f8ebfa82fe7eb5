package domain

import (
	"context"
	"time"
)

// PositionStore owns the portfolio's position list. Implementations must make
// batch writes atomic: a reader never observes a partially replaced list.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error

	// ReplaceAll swaps the entire position list in one atomic write. The
	// orchestrator uses it to publish a batch recalculation as a single
	// visible state change.
	ReplaceAll(ctx context.Context, positions []Position) error

	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Position, error)
	List(ctx context.Context) ([]Position, error)
}

// PortfolioSnapshot is a point-in-time capture of the portfolio used for
// archival and history.
type PortfolioSnapshot struct {
	ID        string
	TakenAt   time.Time
	Positions []Position
	Groups    []GroupedPosition
}

// SnapshotStore persists portfolio snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snap PortfolioSnapshot) error
	ListSince(ctx context.Context, since time.Time) ([]PortfolioSnapshot, error)

	// DeleteBefore removes snapshots older than the cutoff, returning the
	// number removed. The archiver calls this after a successful upload.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
