// Package publisher posts downloaded media to destination accounts.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"video_reposter/internal/domain"
	"video_reposter/internal/retry"
)

type Limits struct {
	TextLength    int
	MaxMediaBytes int64
}

// Client talks to one destination account.
type Client interface {
	Post(ctx context.Context, payload *domain.MediaPayload, text string) (string, error)
	Limits() Limits
}

// ErrCannotReconcile means nothing identifies the post well enough to look
// it up, so its outcome stays unknown.
var ErrCannotReconcile = errors.New("post cannot be reconciled")

// PostRef identifies a post whose creation may or may not have landed.
type PostRef struct {
	// MediaID is the id of the media attached to the post, when known.
	MediaID string
	Text    string
}

// Reconciler is implemented by clients that can look up whether a post
// landed after an ambiguous failure.
type Reconciler interface {
	FindPost(ctx context.Context, ref PostRef, since time.Time) (string, bool, error)
}

type Config struct {
	// Pause is the minimum gap between two posts to the same destination.
	Pause time.Duration
	Retry retry.Policy
}

type Service struct {
	retry  retry.Policy
	pause  time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[string]Client
	limiters map[string]*rate.Limiter
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	return &Service{
		retry:    cfg.Retry,
		pause:    cfg.Pause,
		now:      time.Now,
		logger:   logger,
		clients:  make(map[string]Client),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *Service) Register(destinationID string, client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[destinationID] = client
}

// Publish posts payload with caption to account and returns the post id.
// The payload is released on every path out of this call.
func (s *Service) Publish(ctx context.Context, account domain.DestinationAccount, payload *domain.MediaPayload, caption string) (string, error) {
	logger := s.logger.With("destination", account.ID)
	defer func() {
		if err := payload.Release(); err != nil {
			logger.Warn("failed to release payload", "path", payload.Path, "error", err)
		}
	}()

	client, limiter, ok := s.client(account.ID)
	if !ok {
		return "", domain.NewError(domain.KindDestinationRejected, "publish",
			fmt.Errorf("no client for destination %s", account.ID))
	}

	limits := client.Limits()
	if limits.MaxMediaBytes > 0 && payload.SizeBytes > limits.MaxMediaBytes {
		return "", domain.NewError(domain.KindDestinationRejected, "publish",
			fmt.Errorf("media is %s, limit %s",
				humanize.Bytes(uint64(payload.SizeBytes)),
				humanize.Bytes(uint64(limits.MaxMediaBytes))))
	}

	text := Truncate(caption, limits.TextLength)
	since := s.now().Add(-time.Minute)

	var postID string
	err := s.retry.Do(ctx, logger, "publish", func(ctx context.Context, attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		id, err := client.Post(ctx, payload, text)
		if err == nil {
			postID = id
			return nil
		}
		if !domain.IsUncertain(err) {
			return err
		}

		rec, ok := client.(Reconciler)
		if !ok {
			return err
		}
		found, exists, rerr := rec.FindPost(ctx, PostRef{MediaID: domain.RefOf(err), Text: text}, since)
		if rerr != nil {
			logger.Warn("reconcile failed", "attempt", attempt, "error", rerr)
			return err
		}
		if exists {
			logger.Info("post found after ambiguous failure", "post_id", found)
			postID = found
			return nil
		}
		// confirmed absent, so a new attempt cannot duplicate it
		return domain.NewError(domain.KindDestinationUnavailable, "publish", err)
	})
	if err != nil {
		return "", err
	}

	logger.Info("published",
		"post_id", postID,
		"size", humanize.Bytes(uint64(payload.SizeBytes)),
	)
	return postID, nil
}

// Reconcile looks up whether the post behind a pending marker landed. An
// error means the outcome is still unknown.
func (s *Service) Reconcile(ctx context.Context, pending domain.PendingPost) (string, bool, error) {
	client, _, ok := s.client(pending.DestinationID)
	if !ok {
		return "", false, fmt.Errorf("no client for destination %s", pending.DestinationID)
	}
	rec, ok := client.(Reconciler)
	if !ok {
		return "", false, ErrCannotReconcile
	}

	ref := PostRef{
		MediaID: pending.MediaID,
		Text:    Truncate(pending.Caption, client.Limits().TextLength),
	}
	postID, found, err := rec.FindPost(ctx, ref, pending.AttemptedAt.Add(-time.Minute))
	if err != nil {
		return "", false, fmt.Errorf("reconcile %s: %w", pending.Key, err)
	}
	return postID, found, nil
}

func (s *Service) client(destinationID string) (Client, *rate.Limiter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[destinationID]
	if !ok {
		return nil, nil, false
	}
	limiter, ok := s.limiters[destinationID]
	if !ok {
		limit := rate.Inf
		if s.pause > 0 {
			limit = rate.Every(s.pause)
		}
		limiter = rate.NewLimiter(limit, 1)
		s.limiters[destinationID] = limiter
	}
	return client, limiter, true
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis. max <= 0 means unlimited.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
