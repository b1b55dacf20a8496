// Package source holds the plumbing shared by the origin adapters.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"video_reposter/internal/domain"
)

// maxPageBytes bounds a single listing or history page.
const maxPageBytes = 8 << 20

var ErrConsumed = errors.New("candidate sequence already consumed")

// StatusError is an unexpected HTTP status from an origin.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Once makes seq single-use. A second range yields ErrConsumed.
func Once(seq iter.Seq2[domain.ContentItem, error]) iter.Seq2[domain.ContentItem, error] {
	var used atomic.Bool
	return func(yield func(domain.ContentItem, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(domain.ContentItem{}, ErrConsumed)
			return
		}
		seq(yield)
	}
}

// Fail is a sequence that yields err once.
func Fail(err error) iter.Seq2[domain.ContentItem, error] {
	return func(yield func(domain.ContentItem, error) bool) {
		yield(domain.ContentItem{}, err)
	}
}

// Get fetches url and returns the body. Every failure is a
// SourceUnavailable error; Transient tells which ones are worth retrying.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindSourceUnavailable, "fetch "+url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		e := domain.NewError(domain.KindSourceUnavailable, "fetch "+url, &StatusError{Code: resp.StatusCode})
		e.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		return nil, e
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, domain.NewError(domain.KindSourceUnavailable, "read "+url, err)
	}
	return body, nil
}

// Transient reports whether err is a rate limit, a server error or a
// transport failure, as opposed to e.g. an unknown subreddit.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if domain.KindOf(err) != domain.KindSourceUnavailable {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
