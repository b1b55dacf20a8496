package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"video_reposter/internal/domain"
)

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CursorStore keeps router cursors in one small JSON file, rewritten
// atomically on every save.
type CursorStore struct {
	path string
	mu   sync.Mutex
}

func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

func (s *CursorStore) Get(ctx context.Context, poolID string) (*domain.RouterCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.read()
	if err != nil {
		return nil, err
	}
	if c, ok := cursors[poolID]; ok {
		return &c, nil
	}
	return &domain.RouterCursor{PoolID: poolID}, nil
}

func (s *CursorStore) Save(ctx context.Context, cursor *domain.RouterCursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.read()
	if err != nil {
		return err
	}
	cursors[cursor.PoolID] = *cursor

	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursors: %w", err)
	}

	return writeFileAtomic(s.path, data)
}

// writeFileAtomic replaces path with data through a synced temp file in the
// same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (s *CursorStore) read() (map[string]domain.RouterCursor, error) {
	cursors := make(map[string]domain.RouterCursor)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cursors, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cursors: %w", err)
	}
	if len(data) == 0 {
		return cursors, nil
	}
	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("parse cursors: %w", err)
	}
	return cursors, nil
}
