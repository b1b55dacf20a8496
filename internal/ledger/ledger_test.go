package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video_reposter/internal/domain"
	"video_reposter/internal/storage/jsonl"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memStore struct {
	mu        sync.Mutex
	records   []domain.LedgerRecord
	appendErr error
	loadErr   error
}

func (m *memStore) LoadAll(context.Context) ([]domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]domain.LedgerRecord(nil), m.records...), nil
}

func (m *memStore) Append(_ context.Context, rec domain.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func key(id string) domain.ItemKey {
	return domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: id}
}

func TestLedger_RecordThenHasPosted(t *testing.T) {
	ctx := context.Background()
	l := New(&memStore{}, discard)
	require.NoError(t, l.Load(ctx))

	assert.False(t, l.HasPosted(key("abc123")))

	rec, err := l.Record(ctx, key("abc123"), "account1", "999")
	require.NoError(t, err)
	assert.Equal(t, "account1", rec.DestinationID)
	assert.Equal(t, "999", rec.DestinationPostID)
	assert.False(t, rec.PublishedAt.IsZero())

	assert.True(t, l.HasPosted(key("abc123")))
	assert.False(t, l.HasPosted(domain.ItemKey{Kind: domain.SourceChannel, SourceID: "videos", ItemID: "abc123"}))
}

func TestLedger_RecordDuplicateKey(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, discard)

	_, err := l.Record(ctx, key("abc123"), "account1", "999")
	require.NoError(t, err)

	_, err = l.Record(ctx, key("abc123"), "account2", "1000")
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.Len(t, store.records, 1)
}

func TestLedger_ConcurrentRecordOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	l := New(store, discard)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Record(ctx, key("same"), "account1", "1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, store.records, 1)
}

func TestLedger_AppendFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	l := New(&memStore{appendErr: errors.New("disk full")}, discard)

	_, err := l.Record(ctx, key("abc123"), "account1", "999")
	require.Error(t, err)
	assert.False(t, l.HasPosted(key("abc123")))
}

func TestLedger_LoadDetectsDuplicates(t *testing.T) {
	rec := domain.LedgerRecord{Key: key("abc123"), DestinationID: "account1"}
	l := New(&memStore{records: []domain.LedgerRecord{rec, rec}}, discard)

	err := l.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}

func TestLedger_LoadPropagatesStoreError(t *testing.T) {
	l := New(&memStore{loadErr: errors.New("boom")}, discard)
	assert.Error(t, l.Load(context.Background()))
}

func TestLedger_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	first := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, first.Load(ctx))
	_, err := first.Record(ctx, key("abc123"), "account1", "999")
	require.NoError(t, err)

	second := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, second.Load(ctx))
	assert.True(t, second.HasPosted(key("abc123")))
	assert.Equal(t, 1, second.Len())

	_, err = second.Record(ctx, key("abc123"), "account2", "1000")
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestLedger_RecordsCopy(t *testing.T) {
	ctx := context.Background()
	l := New(&memStore{}, discard)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := l.Record(ctx, key("a"), "account1", "1")
	require.NoError(t, err)

	records := l.Records()
	records[0].DestinationID = "mutated"
	assert.Equal(t, "account1", l.Records()[0].DestinationID)
	assert.Equal(t, 2026, l.Records()[0].PublishedAt.Year())
}

func TestLedger_TwoWritersOnOneFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	first := New(jsonl.NewLedgerStore(path), discard)
	second := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, first.Load(ctx))
	require.NoError(t, second.Load(ctx))
	assert.False(t, first.HasPosted(key("abc123")))
	assert.False(t, second.HasPosted(key("abc123")))

	_, err := first.Record(ctx, key("abc123"), "account1", "999")
	require.NoError(t, err)
	_, err = second.Record(ctx, key("abc123"), "account2", "1000")
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	reloaded := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Len())
	assert.Equal(t, "account1", reloaded.Records()[0].DestinationID)
}

func TestLedger_PendingMarkers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	l := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, l.Load(ctx))

	marker := domain.PendingPost{
		Key:           key("abc123"),
		DestinationID: "account1",
		MediaID:       "m-1",
		AttemptedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, l.MarkUncertain(ctx, marker))
	require.NoError(t, l.MarkUncertain(ctx, domain.PendingPost{Key: key("def456"), DestinationID: "account2", AttemptedAt: marker.AttemptedAt.Add(time.Hour)}))

	restarted := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, restarted.Load(ctx))
	got, ok := restarted.Pending(key("abc123"))
	require.True(t, ok)
	assert.Equal(t, marker, got)
	assert.False(t, restarted.HasPosted(key("abc123")))
	require.Len(t, restarted.PendingPosts(), 2)
	assert.Equal(t, key("abc123"), restarted.PendingPosts()[0].Key)

	_, err := restarted.Record(ctx, key("abc123"), "account1", "999")
	require.NoError(t, err)
	_, ok = restarted.Pending(key("abc123"))
	assert.False(t, ok)

	require.NoError(t, restarted.ClearPending(ctx, key("def456")))
	assert.Empty(t, restarted.PendingPosts())

	again := New(jsonl.NewLedgerStore(path), discard)
	require.NoError(t, again.Load(ctx))
	assert.Empty(t, again.PendingPosts())
	assert.True(t, again.HasPosted(key("abc123")))
}

func TestLedger_MarkUncertainNeedsPendingStore(t *testing.T) {
	l := New(&memStore{}, discard)
	err := l.MarkUncertain(context.Background(), domain.PendingPost{Key: key("abc123")})
	assert.Error(t, err)
	_, ok := l.Pending(key("abc123"))
	assert.False(t, ok)
}
