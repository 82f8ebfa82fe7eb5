package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optfolio/optfolio/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. The whole
// snapshot body is a single JSONB payload; snapshots are written once, listed
// by time range, and pruned after archival.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

type snapshotPayload struct {
	Positions []domain.Position       `json:"positions"`
	Groups    []domain.GroupedPosition `json:"groups"`
}

// Insert stores a portfolio snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.PortfolioSnapshot) error {
	payload, err := json.Marshal(snapshotPayload{
		Positions: snap.Positions,
		Groups:    snap.Groups,
	})
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot %s: %w", snap.ID, err)
	}

	const query = `
		INSERT INTO portfolio_snapshots (id, taken_at, payload)
		VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, snap.ID, snap.TakenAt, payload); err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// ListSince returns snapshots taken at or after the given time, oldest first.
func (s *SnapshotStore) ListSince(ctx context.Context, since time.Time) ([]domain.PortfolioSnapshot, error) {
	const query = `
		SELECT id, taken_at, payload
		FROM portfolio_snapshots
		WHERE taken_at >= $1
		ORDER BY taken_at`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.PortfolioSnapshot
	for rows.Next() {
		var snap domain.PortfolioSnapshot
		var payload []byte
		if err := rows.Scan(&snap.ID, &snap.TakenAt, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		var body snapshotPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot %s: %w", snap.ID, err)
		}
		snap.Positions = body.Positions
		snap.Groups = body.Groups
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteBefore removes snapshots older than the cutoff and reports how many
// were removed.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portfolio_snapshots WHERE taken_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
