// Package ledger answers "has this item ever been published" and records
// new publications durably.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"video_reposter/internal/domain"
)

// Store is the durable backing of the ledger. Append must not return until
// the record is flushed.
type Store interface {
	LoadAll(ctx context.Context) ([]domain.LedgerRecord, error)
	Append(ctx context.Context, rec domain.LedgerRecord) error
}

// PendingStore is implemented by stores that can keep markers for items
// whose publish outcome is unknown.
type PendingStore interface {
	LoadPending(ctx context.Context) ([]domain.PendingPost, error)
	SavePending(ctx context.Context, p domain.PendingPost) error
	ClearPending(ctx context.Context, key domain.ItemKey) error
}

type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	index   map[domain.ItemKey]domain.LedgerRecord
	records []domain.LedgerRecord
	pending map[domain.ItemKey]domain.PendingPost
}

func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		logger:  logger,
		now:     time.Now,
		index:   make(map[domain.ItemKey]domain.LedgerRecord),
		pending: make(map[domain.ItemKey]domain.PendingPost),
	}
}

// Load rebuilds the index from the store. A key stored twice means the
// store was edited or two writers raced past the uniqueness check.
func (l *Ledger) Load(ctx context.Context) error {
	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	index := make(map[domain.ItemKey]domain.LedgerRecord, len(records))
	for _, rec := range records {
		if _, ok := index[rec.Key]; ok {
			return domain.NewError(domain.KindLedgerCorrupt, "load ledger",
				fmt.Errorf("key %s recorded more than once", rec.Key))
		}
		index[rec.Key] = rec
	}

	pending := make(map[domain.ItemKey]domain.PendingPost)
	if ps, ok := l.store.(PendingStore); ok {
		list, err := ps.LoadPending(ctx)
		if err != nil {
			return fmt.Errorf("load pending: %w", err)
		}
		for _, p := range list {
			pending[p.Key] = p
		}
	}

	l.mu.Lock()
	l.index = index
	l.records = records
	l.pending = pending
	l.mu.Unlock()

	l.logger.Debug("ledger loaded", "records", len(records), "pending", len(pending))
	return nil
}

func (l *Ledger) HasPosted(key domain.ItemKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[key]
	return ok
}

// Record persists a publication of key. The check and the append happen
// under one lock, so two calls for the same key cannot both succeed.
func (l *Ledger) Record(ctx context.Context, key domain.ItemKey, destinationID, postID string) (domain.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.index[key]; ok {
		return existing, domain.NewError(domain.KindDuplicateKey, "record",
			fmt.Errorf("%s already published to %s", key, existing.DestinationID))
	}

	rec := domain.LedgerRecord{
		Key:               key,
		DestinationID:     destinationID,
		DestinationPostID: postID,
		PublishedAt:       l.now().UTC(),
	}
	if err := l.store.Append(ctx, rec); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("append ledger record: %w", err)
	}

	l.index[key] = rec
	l.records = append(l.records, rec)

	if _, ok := l.pending[key]; ok {
		if err := l.clearPendingLocked(ctx, key); err != nil {
			l.logger.Warn("failed to clear pending marker", "item", key.String(), "error", err)
		}
	}
	return rec, nil
}

// MarkUncertain persists a marker for an item whose publish outcome is
// unknown.
func (l *Ledger) MarkUncertain(ctx context.Context, p domain.PendingPost) error {
	ps, ok := l.store.(PendingStore)
	if !ok {
		return fmt.Errorf("ledger store cannot keep pending markers")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ps.SavePending(ctx, p); err != nil {
		return fmt.Errorf("save pending marker: %w", err)
	}
	l.pending[p.Key] = p
	return nil
}

func (l *Ledger) Pending(key domain.ItemKey) (domain.PendingPost, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pending[key]
	return p, ok
}

// PendingPosts returns every unresolved marker, oldest first.
func (l *Ledger) PendingPosts() []domain.PendingPost {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PendingPost, 0, len(l.pending))
	for _, p := range l.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.Before(out[j].AttemptedAt) })
	return out
}

// ClearPending drops the marker for key, letting the item be published
// again.
func (l *Ledger) ClearPending(ctx context.Context, key domain.ItemKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clearPendingLocked(ctx, key)
}

func (l *Ledger) clearPendingLocked(ctx context.Context, key domain.ItemKey) error {
	ps, ok := l.store.(PendingStore)
	if !ok {
		return nil
	}
	if err := ps.ClearPending(ctx, key); err != nil {
		return fmt.Errorf("clear pending marker: %w", err)
	}
	delete(l.pending, key)
	return nil
}

// Records returns a copy of every record in append order.
func (l *Ledger) Records() []domain.LedgerRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LedgerRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.index)
}
