// Package jsonl keeps pipeline state in flat, human-readable files.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"video_reposter/internal/domain"
)

const (
	maxLineLength = 1 << 20
	lockRetry     = 50 * time.Millisecond
)

// ledgerLine is one published item as written to the ledger file.
type ledgerLine struct {
	SourceKind        domain.SourceKind `json:"source_kind"`
	SourceID          string            `json:"source_id"`
	ItemID            string            `json:"item_id"`
	DestinationID     string            `json:"destination_id"`
	DestinationPostID string            `json:"destination_post_id"`
	PublishedAt       string            `json:"published_at"`
}

// LedgerStore is an append-only JSONL file, one record per line. Writers
// in other processes are excluded by an advisory lock on <path>.lock, and
// pending markers live next to the ledger in <path>.pending.json.
type LedgerStore struct {
	path string
	mu   sync.Mutex
}

func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

func (s *LedgerStore) Path() string {
	return s.path
}

func (s *LedgerStore) pendingPath() string {
	return s.path + ".pending.json"
}

// locked runs fn while holding both the in-process mutex and the file lock.
func (s *LedgerStore) locked(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	fl := flock.New(s.path + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock ledger: %s is held", fl.Path())
	}
	defer fl.Unlock()

	return fn()
}

func (s *LedgerStore) LoadAll(ctx context.Context) ([]domain.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *LedgerStore) read(ctx context.Context) ([]domain.LedgerRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var records []domain.LedgerRecord
	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := decodeLine(line)
		if err != nil {
			return nil, domain.NewError(domain.KindLedgerCorrupt, "load ledger",
				fmt.Errorf("%s line %d: %w", s.path, lineNum, err))
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	return records, nil
}

// Append writes rec and syncs the file before returning. The key is checked
// against the file under the file lock, so a record written by another
// process since our last load is reported as domain.ErrDuplicateKey.
func (s *LedgerStore) Append(ctx context.Context, rec domain.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(encodeLine(rec))
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	data = append(data, '\n')

	return s.locked(ctx, func() error {
		existing, err := s.read(ctx)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Key == rec.Key {
				return domain.NewError(domain.KindDuplicateKey, "append ledger",
					fmt.Errorf("%s already recorded by %s", rec.Key, r.DestinationID))
			}
		}

		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("write ledger: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("sync ledger: %w", err)
		}
		return f.Close()
	})
}

func (s *LedgerStore) LoadPending(ctx context.Context) ([]domain.PendingPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.readPending()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingPost, 0, len(pending))
	for _, p := range pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.Before(out[j].AttemptedAt) })
	return out, nil
}

func (s *LedgerStore) SavePending(ctx context.Context, p domain.PendingPost) error {
	return s.locked(ctx, func() error {
		pending, err := s.readPending()
		if err != nil {
			return err
		}
		pending[p.Key.String()] = p
		return s.writePending(pending)
	})
}

func (s *LedgerStore) ClearPending(ctx context.Context, key domain.ItemKey) error {
	return s.locked(ctx, func() error {
		pending, err := s.readPending()
		if err != nil {
			return err
		}
		if _, ok := pending[key.String()]; !ok {
			return nil
		}
		delete(pending, key.String())
		return s.writePending(pending)
	})
}

func (s *LedgerStore) readPending() (map[string]domain.PendingPost, error) {
	pending := make(map[string]domain.PendingPost)

	data, err := os.ReadFile(s.pendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return pending, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending: %w", err)
	}
	if len(data) == 0 {
		return pending, nil
	}
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, domain.NewError(domain.KindLedgerCorrupt, "load pending",
			fmt.Errorf("%s: %w", s.pendingPath(), err))
	}
	return pending, nil
}

func (s *LedgerStore) writePending(pending map[string]domain.PendingPost) error {
	data, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return writeFileAtomic(s.pendingPath(), data)
}

func encodeLine(rec domain.LedgerRecord) ledgerLine {
	return ledgerLine{
		SourceKind:        rec.Key.Kind,
		SourceID:          rec.Key.SourceID,
		ItemID:            rec.Key.ItemID,
		DestinationID:     rec.DestinationID,
		DestinationPostID: rec.DestinationPostID,
		PublishedAt:       rec.PublishedAt.UTC().Format(timeLayout),
	}
}

func decodeLine(line string) (domain.LedgerRecord, error) {
	var l ledgerLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("invalid json: %w", err)
	}
	if !l.SourceKind.Valid() || l.SourceID == "" || l.ItemID == "" {
		return domain.LedgerRecord{}, fmt.Errorf("incomplete item key %s/%s/%s", l.SourceKind, l.SourceID, l.ItemID)
	}

	publishedAt, err := parseTime(l.PublishedAt)
	if err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("invalid published_at %q: %w", l.PublishedAt, err)
	}

	return domain.LedgerRecord{
		Key: domain.ItemKey{
			Kind:     l.SourceKind,
			SourceID: l.SourceID,
			ItemID:   l.ItemID,
		},
		DestinationID:     l.DestinationID,
		DestinationPostID: l.DestinationPostID,
		PublishedAt:       publishedAt,
	}, nil
}
