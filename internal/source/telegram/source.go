// Package telegram is the channel-based source adapter. It reads the public
// web preview of a channel (t.me/s/<channel>) and walks back through its
// history with the before= cursor.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"video_reposter/internal/domain"
	"video_reposter/internal/retry"
	"video_reposter/internal/source"
)

const userAgent = "Mozilla/5.0 (compatible; VideoReposter/1.0)"

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

type Source struct {
	httpClient *http.Client
	baseURL    string
	retry      retry.Policy
	now        func() time.Time
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	policy := cfg.Retry
	policy.Retryable = source.Transient

	return &Source{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retry:      policy,
		now:        time.Now,
		logger:     logger.With("source", string(domain.SourceChannel)),
	}
}

func (s *Source) Kind() domain.SourceKind {
	return domain.SourceChannel
}

type message struct {
	id        int64
	videoURL  string
	text      string
	permalink string
}

// FetchCandidates walks at most limit messages of the channel, newest
// first, and yields those with a playable video.
func (s *Source) FetchCandidates(ctx context.Context, channel string, limit int) iter.Seq2[domain.ContentItem, error] {
	channel = strings.TrimPrefix(channel, "@")
	if limit <= 0 {
		return source.Once(func(func(domain.ContentItem, error) bool) {})
	}

	return source.Once(func(yield func(domain.ContentItem, error) bool) {
		logger := s.logger.With("channel", channel)
		var before int64
		scanned := 0

		for scanned < limit {
			msgs, err := s.fetchPage(ctx, channel, before)
			if err != nil {
				yield(domain.ContentItem{}, fmt.Errorf("fetch channel %s: %w", channel, err))
				return
			}

			// a page lists oldest to newest
			sort.Slice(msgs, func(i, j int) bool { return msgs[i].id > msgs[j].id })

			progressed := false
			videos := 0
			for _, m := range msgs {
				if before != 0 && m.id >= before {
					continue
				}
				if scanned >= limit {
					break
				}
				progressed = true
				scanned++
				before = m.id

				if m.videoURL == "" {
					continue
				}
				videos++
				if !yield(s.toItem(channel, m), nil) {
					return
				}
			}

			logger.Debug("fetched history page",
				"messages", len(msgs),
				"videos", videos,
				"scanned", scanned,
				"before", before,
			)

			if !progressed || before <= 1 {
				return
			}
		}
	})
}

func (s *Source) fetchPage(ctx context.Context, channel string, before int64) ([]message, error) {
	u := fmt.Sprintf("%s/s/%s", s.baseURL, url.PathEscape(channel))
	if before > 0 {
		u += "?before=" + strconv.FormatInt(before, 10)
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Accept", "text/html")

	var msgs []message
	err := s.retry.Do(ctx, s.logger, "fetch channel page", func(ctx context.Context, _ int) error {
		body, err := source.Get(ctx, s.httpClient, u, header)
		if err != nil {
			return err
		}
		msgs, err = parsePage(body, s.baseURL)
		if err != nil {
			return domain.NewError(domain.KindSourceUnavailable, "parse channel page", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func parsePage(body []byte, baseURL string) ([]message, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var msgs []message
	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, sel *goquery.Selection) {
		post, _ := sel.Attr("data-post")
		i := strings.LastIndex(post, "/")
		if i < 0 {
			return
		}
		id, err := strconv.ParseInt(post[i+1:], 10, 64)
		if err != nil {
			return
		}

		m := message{
			id:        id,
			permalink: baseURL + "/" + post,
			text:      strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text()),
		}

		video := sel.Find("video.tgme_widget_message_video, video.tgme_widget_message_roundvideo").First()
		if src, ok := video.Attr("src"); ok {
			m.videoURL = src
		}

		msgs = append(msgs, m)
	})
	return msgs, nil
}

func (s *Source) toItem(channel string, m message) domain.ContentItem {
	return domain.ContentItem{
		Key: domain.ItemKey{
			Kind:     domain.SourceChannel,
			SourceID: channel,
			ItemID:   strconv.FormatInt(m.id, 10),
		},
		MediaRef:     domain.MediaRef{URL: m.videoURL},
		Text:         m.text,
		Permalink:    m.permalink,
		DiscoveredAt: s.now().UTC(),
	}
}
