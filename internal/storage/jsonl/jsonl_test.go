package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video_reposter/internal/domain"
)

func TestLedgerStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.jsonl")
	store := NewLedgerStore(path)

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.LedgerRecord{
		Key:               domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: "abc123"},
		DestinationID:     "account1",
		DestinationPostID: "999",
		PublishedAt:       published,
	}
	require.NoError(t, store.Append(ctx, rec))
	require.NoError(t, store.Append(ctx, domain.LedgerRecord{
		Key:               domain.ItemKey{Kind: domain.SourceChannel, SourceID: "clips", ItemID: "42"},
		DestinationID:     "account2",
		DestinationPostID: "1000",
		PublishedAt:       published.Add(time.Minute),
	}))

	records, err = NewLedgerStore(path).LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, rec, records[0])
	assert.Equal(t, "42", records[1].Key.ItemID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"source_kind":"listing"`)
	assert.Contains(t, lines[0], `"item_id":"abc123"`)
}

func TestLedgerStore_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"source_kind\":\"listing\"\nnot json\n"), 0o644))

	_, err := NewLedgerStore(path).LoadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLedgerStore_IncompleteKeyIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	line := `{"source_kind":"listing","source_id":"videos","item_id":"","destination_id":"a","destination_post_id":"1","published_at":"2026-03-01T12:00:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))

	_, err := NewLedgerStore(path).LoadAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}

func TestCursorStore_GetMissingAndSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursor.json")
	store := NewCursorStore(path)

	c, err := store.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", c.PoolID)
	assert.Equal(t, int64(0), c.Position)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Save(ctx, &domain.RouterCursor{PoolID: "default", Position: 7, UpdatedAt: now}))
	require.NoError(t, store.Save(ctx, &domain.RouterCursor{PoolID: "other", Position: 2, UpdatedAt: now}))

	reloaded := NewCursorStore(path)
	c, err = reloaded.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Position)
	assert.True(t, now.Equal(c.UpdatedAt))

	c, err = reloaded.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Position)
}

func TestLedgerStore_AppendRejectsKeyWrittenByAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	first := NewLedgerStore(path)
	second := NewLedgerStore(path)

	key := domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: "abc123"}
	require.NoError(t, first.Append(ctx, domain.LedgerRecord{Key: key, DestinationID: "account1", DestinationPostID: "999", PublishedAt: time.Now()}))

	err := second.Append(ctx, domain.LedgerRecord{Key: key, DestinationID: "account2", DestinationPostID: "1000", PublishedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	records, err := first.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedgerStore_PendingRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.jsonl")
	store := NewLedgerStore(path)

	pending, err := store.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	attempted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := domain.PendingPost{
		Key:           domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: "abc123"},
		DestinationID: "account1",
		MediaID:       "m-1",
		Caption:       "funny clip",
		AttemptedAt:   attempted,
	}
	second := domain.PendingPost{
		Key:           domain.ItemKey{Kind: domain.SourceChannel, SourceID: "clips", ItemID: "42"},
		DestinationID: "account2",
		AttemptedAt:   attempted.Add(time.Minute),
	}
	require.NoError(t, store.SavePending(ctx, second))
	require.NoError(t, store.SavePending(ctx, first))

	pending, err = NewLedgerStore(path).LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0])
	assert.Equal(t, "42", pending[1].Key.ItemID)

	require.NoError(t, store.ClearPending(ctx, first.Key))
	require.NoError(t, store.ClearPending(ctx, first.Key))

	pending, err = store.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Key, pending[0].Key)

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLedgerStore_CorruptPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	require.NoError(t, os.WriteFile(path+".pending.json", []byte("{not json"), 0o644))

	_, err := NewLedgerStore(path).LoadPending(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}
