// Package reddit is the listing-based source adapter. It walks a
// subreddit listing page by page and yields the posts that carry video.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"video_reposter/internal/domain"
	"video_reposter/internal/media"
	"video_reposter/internal/retry"
	"video_reposter/internal/source"
)

const (
	maxPageSize   = 100
	permalinkBase = "https://reddit.com"
	selftextLimit = 150
)

type Config struct {
	BaseURL           string
	UserAgent         string
	Listing           string
	Timeout           time.Duration
	RequestsPerMinute int
	Retry             retry.Policy
}

type Source struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	listing    string
	limiter    *rate.Limiter
	retry      retry.Policy
	now        func() time.Time
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	listing := cfg.Listing
	if listing == "" {
		listing = "new"
	}

	policy := cfg.Retry
	policy.Retryable = source.Transient

	return &Source{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		listing:    listing,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		retry:      policy,
		now:        time.Now,
		logger:     logger.With("source", string(domain.SourceListing)),
	}
}

func (s *Source) Kind() domain.SourceKind {
	return domain.SourceListing
}

// FetchCandidates walks at most limit posts of the subreddit listing,
// newest first, and yields those with video media. Pages are requested
// while the caller iterates.
func (s *Source) FetchCandidates(ctx context.Context, subreddit string, limit int) iter.Seq2[domain.ContentItem, error] {
	if limit <= 0 {
		return source.Once(func(func(domain.ContentItem, error) bool) {})
	}

	return source.Once(func(yield func(domain.ContentItem, error) bool) {
		logger := s.logger.With("subreddit", subreddit)
		after := ""
		scanned := 0

		for scanned < limit {
			page, err := s.fetchPage(ctx, subreddit, after, min(limit-scanned, maxPageSize))
			if err != nil {
				yield(domain.ContentItem{}, fmt.Errorf("fetch r/%s: %w", subreddit, err))
				return
			}

			videos := 0
			for _, c := range page.Data.Children {
				if scanned >= limit {
					break
				}
				scanned++

				item, ok := s.toItem(subreddit, c.Data)
				if !ok {
					continue
				}
				videos++
				if !yield(item, nil) {
					return
				}
			}

			logger.Debug("fetched listing page",
				"after", after,
				"posts", len(page.Data.Children),
				"videos", videos,
				"scanned", scanned,
			)

			if page.Data.After == "" || len(page.Data.Children) == 0 {
				return
			}
			after = page.Data.After
		}
	})
}

func (s *Source) fetchPage(ctx context.Context, subreddit, after string, size int) (*listing, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(size))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	u := fmt.Sprintf("%s/r/%s/%s.json?%s", s.baseURL, url.PathEscape(subreddit), s.listing, q.Encode())

	header := http.Header{}
	header.Set("User-Agent", s.userAgent)
	header.Set("Accept", "application/json")

	var page listing
	err := s.retry.Do(ctx, s.logger, "fetch listing", func(ctx context.Context, _ int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := source.Get(ctx, s.httpClient, u, header)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return domain.NewError(domain.KindSourceUnavailable, "decode listing", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Source) toItem(subreddit string, p post) (domain.ContentItem, bool) {
	ref, ok := videoRef(p)
	if !ok || p.ID == "" {
		return domain.ContentItem{}, false
	}

	text := strings.TrimSpace(p.Title)
	if self := strings.TrimSpace(p.Selftext); self != "" {
		if r := []rune(self); len(r) > selftextLimit {
			self = string(r[:selftextLimit]) + "..."
		}
		text = text + "\n\n" + self
	}

	return domain.ContentItem{
		Key: domain.ItemKey{
			Kind:     domain.SourceListing,
			SourceID: subreddit,
			ItemID:   p.ID,
		},
		MediaRef:     ref,
		Text:         text,
		Permalink:    permalinkBase + p.Permalink,
		DiscoveredAt: s.now().UTC(),
	}, true
}

// videoRef decides whether a post carries a video we know how to fetch.
func videoRef(p post) (domain.MediaRef, bool) {
	if p.IsVideo {
		for _, m := range []*postMedia{p.Media, p.SecureMedia} {
			if m != nil && m.RedditVideo != nil && m.RedditVideo.FallbackURL != "" {
				return domain.MediaRef{URL: m.RedditVideo.FallbackURL}, true
			}
		}
		return domain.MediaRef{}, false
	}

	if len(p.CrosspostParents) > 0 {
		if ref, ok := videoRef(p.CrosspostParents[0]); ok {
			return ref, true
		}
	}

	if p.IsSelf || p.URL == "" {
		return domain.MediaRef{}, false
	}

	u, err := url.Parse(p.URL)
	if err != nil {
		return domain.MediaRef{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	ext := strings.ToLower(path.Ext(u.Path))

	switch {
	case hostIs(host, "youtube.com", "youtu.be", "vimeo.com"):
		return domain.MediaRef{}, false
	case hostIs(host, "gfycat.com"):
		return domain.MediaRef{Provider: media.ProviderGfycat, URL: p.URL, Slug: lastSegment(u.Path)}, true
	case hostIs(host, "imgur.com") && (ext == ".gifv" || ext == ".mp4"):
		return domain.MediaRef{Provider: media.ProviderImgur, URL: p.URL}, true
	case hostIs(host, "streamable.com"):
		return domain.MediaRef{Provider: media.ProviderStreamable, URL: p.URL, Slug: lastSegment(u.Path)}, true
	case ext == ".m3u8":
		return domain.MediaRef{Provider: media.ProviderHLS, URL: p.URL}, true
	case ext == ".mp4" || ext == ".webm" || ext == ".mov":
		return domain.MediaRef{URL: p.URL}, true
	}
	return domain.MediaRef{}, false
}

func hostIs(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return strings.TrimSuffix(p, path.Ext(p))
}
