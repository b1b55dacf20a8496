package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"video_reposter/internal/domain"
)

const uniqueViolation = pq.ErrorCode("23505")

type ledgerRow struct {
	SourceKind        string    `db:"source_kind"`
	SourceID          string    `db:"source_id"`
	ItemID            string    `db:"item_id"`
	DestinationID     string    `db:"destination_id"`
	DestinationPostID string    `db:"destination_post_id"`
	PublishedAt       time.Time `db:"published_at"`
}

// LedgerStore keeps published items in published_items. The table has a
// unique constraint on the item key and rejects updates and deletes.
type LedgerStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewLedgerStore(db *sqlx.DB, tx *TransactionManager) *LedgerStore {
	return &LedgerStore{db: db, tx: tx}
}

func (s *LedgerStore) LoadAll(ctx context.Context) ([]domain.LedgerRecord, error) {
	query := `
		SELECT source_kind, source_id, item_id, destination_id, destination_post_id, published_at
		FROM published_items
		ORDER BY id`

	var rows []ledgerRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, fmt.Errorf("select published items: %w", err)
	}

	records := make([]domain.LedgerRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, domain.LedgerRecord{
			Key: domain.ItemKey{
				Kind:     domain.SourceKind(r.SourceKind),
				SourceID: r.SourceID,
				ItemID:   r.ItemID,
			},
			DestinationID:     r.DestinationID,
			DestinationPostID: r.DestinationPostID,
			PublishedAt:       r.PublishedAt,
		})
	}
	return records, nil
}

// Append inserts rec and bumps the destination total in one transaction.
// A lost race against another run surfaces as domain.ErrDuplicateKey.
func (s *LedgerStore) Append(ctx context.Context, rec domain.LedgerRecord) error {
	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		_, err := exec.ExecContext(txCtx, `
			INSERT INTO published_items (
				source_kind, source_id, item_id, destination_id, destination_post_id, published_at
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			string(rec.Key.Kind),
			rec.Key.SourceID,
			rec.Key.ItemID,
			rec.DestinationID,
			rec.DestinationPostID,
			rec.PublishedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return domain.NewError(domain.KindDuplicateKey, "append ledger", fmt.Errorf("%s already recorded", rec.Key))
			}
			return fmt.Errorf("insert published item: %w", err)
		}

		_, err = exec.ExecContext(txCtx, `
			INSERT INTO destination_totals (destination_id, published, last_published_at)
			VALUES ($1, 1, $2)
			ON CONFLICT (destination_id) DO UPDATE SET
				published = destination_totals.published + 1,
				last_published_at = EXCLUDED.last_published_at`,
			rec.DestinationID,
			rec.PublishedAt,
		)
		if err != nil {
			return fmt.Errorf("update destination totals: %w", err)
		}
		return nil
	})
}

type totalRow struct {
	DestinationID string `db:"destination_id"`
	Published     int64  `db:"published"`
}

// Totals returns the number of items ever published per destination.
func (s *LedgerStore) Totals(ctx context.Context) (map[string]int64, error) {
	var rows []totalRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT destination_id, published FROM destination_totals`)
	if err != nil {
		return nil, fmt.Errorf("select destination totals: %w", err)
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.DestinationID] = r.Published
	}
	return result, nil
}

type pendingRow struct {
	SourceKind    string    `db:"source_kind"`
	SourceID      string    `db:"source_id"`
	ItemID        string    `db:"item_id"`
	DestinationID string    `db:"destination_id"`
	MediaID       string    `db:"media_id"`
	Caption       string    `db:"caption"`
	AttemptedAt   time.Time `db:"attempted_at"`
}

func (s *LedgerStore) LoadPending(ctx context.Context) ([]domain.PendingPost, error) {
	query := `
		SELECT source_kind, source_id, item_id, destination_id, media_id, caption, attempted_at
		FROM pending_posts
		ORDER BY attempted_at`

	var rows []pendingRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, fmt.Errorf("select pending posts: %w", err)
	}

	pending := make([]domain.PendingPost, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, domain.PendingPost{
			Key: domain.ItemKey{
				Kind:     domain.SourceKind(r.SourceKind),
				SourceID: r.SourceID,
				ItemID:   r.ItemID,
			},
			DestinationID: r.DestinationID,
			MediaID:       r.MediaID,
			Caption:       r.Caption,
			AttemptedAt:   r.AttemptedAt,
		})
	}
	return pending, nil
}

func (s *LedgerStore) SavePending(ctx context.Context, p domain.PendingPost) error {
	query := `
		INSERT INTO pending_posts (
			source_kind, source_id, item_id, destination_id, media_id, caption, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_kind, source_id, item_id) DO UPDATE SET
			destination_id = EXCLUDED.destination_id,
			media_id = EXCLUDED.media_id,
			caption = EXCLUDED.caption,
			attempted_at = EXCLUDED.attempted_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		string(p.Key.Kind),
		p.Key.SourceID,
		p.Key.ItemID,
		p.DestinationID,
		p.MediaID,
		p.Caption,
		p.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("save pending post: %w", err)
	}
	return nil
}

func (s *LedgerStore) ClearPending(ctx context.Context, key domain.ItemKey) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM pending_posts WHERE source_kind = $1 AND source_id = $2 AND item_id = $3`,
		string(key.Kind), key.SourceID, key.ItemID,
	)
	if err != nil {
		return fmt.Errorf("clear pending post: %w", err)
	}
	return nil
}
