// Package router spreads publications across a destination pool using a
// smooth weighted round-robin with a durable cursor.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"video_reposter/internal/domain"
)

type CursorStore interface {
	Get(ctx context.Context, poolID string) (*domain.RouterCursor, error)
	Save(ctx context.Context, cursor *domain.RouterCursor) error
}

// Router owns the rotation state of one destination pool. The cursor only
// moves on Commit, so an item that fails to publish does not consume a turn.
type Router struct {
	poolID string
	store  CursorStore
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	position int64
}

func New(poolID string, store CursorStore, logger *slog.Logger) *Router {
	if store == nil {
		store = NewMemoryCursorStore()
	}
	return &Router{
		poolID: poolID,
		store:  store,
		logger: logger.With("pool", poolID),
		now:    time.Now,
	}
}

func (r *Router) Load(ctx context.Context) error {
	cursor, err := r.store.Get(ctx, r.poolID)
	if err != nil {
		return fmt.Errorf("load router cursor: %w", err)
	}

	r.mu.Lock()
	r.position = cursor.Position
	r.mu.Unlock()
	return nil
}

// Select returns the destination whose turn it is. It does not advance.
func (r *Router) Select(pool []domain.DestinationAccount, item domain.ContentItem) (string, error) {
	if len(pool) == 0 {
		return "", domain.NewError(domain.KindNoDestinationsConfigured, "select destination", nil)
	}

	schedule := Schedule(pool)

	r.mu.Lock()
	pos := r.position
	r.mu.Unlock()

	id := schedule[int(pos%int64(len(schedule)))]
	r.logger.Debug("destination selected",
		"item", item.Key.String(),
		"destination", id,
		"position", pos,
	)
	return id, nil
}

// Commit records that destinationID received an item and persists the
// advanced cursor.
func (r *Router) Commit(ctx context.Context, destinationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &domain.RouterCursor{
		PoolID:    r.poolID,
		Position:  r.position + 1,
		UpdatedAt: r.now().UTC(),
	}
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save router cursor: %w", err)
	}
	r.position = next.Position

	r.logger.Debug("router advanced", "destination", destinationID, "position", next.Position)
	return nil
}

func (r *Router) Position() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// Schedule expands the pool into one full rotation cycle. Its length is the
// sum of weights, and heavier destinations are interleaved rather than
// bunched together.
func Schedule(pool []domain.DestinationAccount) []string {
	total := 0
	for _, d := range pool {
		total += d.Weight()
	}

	current := make([]int, len(pool))
	schedule := make([]string, 0, total)
	for len(schedule) < total {
		best := 0
		for i, d := range pool {
			current[i] += d.Weight()
			if current[i] > current[best] {
				best = i
			}
		}
		current[best] -= total
		schedule = append(schedule, pool[best].ID)
	}
	return schedule
}

type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]domain.RouterCursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]domain.RouterCursor)}
}

func (m *MemoryCursorStore) Get(_ context.Context, poolID string) (*domain.RouterCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cursors[poolID]; ok {
		return &c, nil
	}
	return &domain.RouterCursor{PoolID: poolID}, nil
}

func (m *MemoryCursorStore) Save(_ context.Context, cursor *domain.RouterCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursor.PoolID] = *cursor
	return nil
}
