package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optfolio/optfolio/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Greeks and
// P&L results are stored as JSONB blobs: they are opaque analytics payloads
// that are always read and replaced whole.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, ticker, expiration, strike, option_type, action, quantity,
	premium, mark_price, mark_price_override, greeks, pnl, theoretical_pnl,
	created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var typ, action string
	var greeksJSON, pnlJSON, theoJSON []byte

	err := row.Scan(
		&p.ID, &p.Ticker, &p.Expiration, &p.Strike, &typ, &action, &p.Quantity,
		&p.Premium, &p.MarkPrice, &p.MarkPriceOverride,
		&greeksJSON, &pnlJSON, &theoJSON,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Type = domain.OptionType(typ)
	p.Action = domain.Action(action)

	if len(greeksJSON) > 0 {
		var g domain.Greeks
		if err := json.Unmarshal(greeksJSON, &g); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal greeks: %w", err)
		}
		p.Greeks = &g
	}
	if len(pnlJSON) > 0 {
		var r domain.PnLResult
		if err := json.Unmarshal(pnlJSON, &r); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal pnl: %w", err)
		}
		p.PnL = &r
	}
	if len(theoJSON) > 0 {
		var r domain.PnLResult
		if err := json.Unmarshal(theoJSON, &r); err != nil {
			return domain.Position{}, fmt.Errorf("unmarshal theoretical pnl: %w", err)
		}
		p.TheoreticalPnL = &r
	}
	return p, nil
}

func positionArgs(p domain.Position) ([]any, error) {
	marshal := func(v any) ([]byte, error) {
		if v == nil {
			return nil, nil
		}
		return json.Marshal(v)
	}

	var greeksJSON, pnlJSON, theoJSON []byte
	var err error
	if p.Greeks != nil {
		if greeksJSON, err = marshal(p.Greeks); err != nil {
			return nil, fmt.Errorf("marshal greeks: %w", err)
		}
	}
	if p.PnL != nil {
		if pnlJSON, err = marshal(p.PnL); err != nil {
			return nil, fmt.Errorf("marshal pnl: %w", err)
		}
	}
	if p.TheoreticalPnL != nil {
		if theoJSON, err = marshal(p.TheoreticalPnL); err != nil {
			return nil, fmt.Errorf("marshal theoretical pnl: %w", err)
		}
	}

	return []any{
		p.ID, p.Ticker, p.Expiration, p.Strike, string(p.Type), string(p.Action), p.Quantity,
		p.Premium, p.MarkPrice, p.MarkPriceOverride,
		greeksJSON, pnlJSON, theoJSON,
		p.CreatedAt, p.UpdatedAt,
	}, nil
}

const insertPosition = `
	INSERT INTO positions (` + positionCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	args, err := positionArgs(p)
	if err != nil {
		return fmt.Errorf("postgres: create position: %w", err)
	}
	if _, err := s.pool.Exec(ctx, insertPosition, args...); err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces an existing position row.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			ticker = $2, expiration = $3, strike = $4, option_type = $5,
			action = $6, quantity = $7, premium = $8, mark_price = $9,
			mark_price_override = $10, greeks = $11, pnl = $12,
			theoretical_pnl = $13, updated_at = NOW()
		WHERE id = $1`

	args, err := positionArgs(p)
	if err != nil {
		return fmt.Errorf("postgres: update position: %w", err)
	}
	// Reuse the insert argument order minus the timestamp columns.
	tag, err := s.pool.Exec(ctx, query, args[:13]...)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReplaceAll swaps the whole position list inside one transaction so readers
// never observe a partially replaced portfolio.
func (s *PositionStore) ReplaceAll(ctx context.Context, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: replace positions: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("postgres: replace positions: clear: %w", err)
	}

	for _, p := range positions {
		args, err := positionArgs(p)
		if err != nil {
			return fmt.Errorf("postgres: replace positions: %w", err)
		}
		if _, err := tx.Exec(ctx, insertPosition, args...); err != nil {
			return fmt.Errorf("postgres: replace positions: insert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: replace positions: commit: %w", err)
	}
	return nil
}

// Delete removes a position by ID.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// List returns every position ordered by creation time.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionCols+` FROM positions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	return positions, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
