package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"video_reposter/internal/domain"
)

type CursorStore struct {
	db *sqlx.DB
}

func NewCursorStore(db *sqlx.DB) *CursorStore {
	return &CursorStore{db: db}
}

func (s *CursorStore) Get(ctx context.Context, poolID string) (*domain.RouterCursor, error) {
	var cursor domain.RouterCursor
	query := `
		SELECT pool_id, position, updated_at
		FROM router_cursors
		WHERE pool_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cursor, query, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		// unseen pools start at the first destination
		return &domain.RouterCursor{PoolID: poolID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (s *CursorStore) Save(ctx context.Context, cursor *domain.RouterCursor) error {
	query := `
		INSERT INTO router_cursors (pool_id, position, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (pool_id) DO UPDATE SET
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		cursor.PoolID,
		cursor.Position,
		cursor.UpdatedAt,
	)
	return err
}
