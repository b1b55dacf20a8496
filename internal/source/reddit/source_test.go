package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video_reposter/internal/domain"
	"video_reposter/internal/media"
	"video_reposter/internal/retry"
	"video_reposter/internal/source"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestSource(rt roundTripFunc) *Source {
	s := New(Config{
		BaseURL:           "https://reddit.test",
		UserAgent:         "test-agent",
		RequestsPerMinute: 6000,
		Retry: retry.Policy{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	}, discard)
	s.httpClient = &http.Client{Transport: rt}
	return s
}

func page(after string, posts ...post) string {
	var l listing
	l.Data.After = after
	for _, p := range posts {
		l.Data.Children = append(l.Data.Children, child{Kind: "t3", Data: p})
	}
	b, _ := json.Marshal(l)
	return string(b)
}

func redditVideoPost(id string) post {
	return post{
		ID:        id,
		Title:     "Video " + id,
		Permalink: "/r/videos/comments/" + id + "/x/",
		IsVideo:   true,
		Media: &postMedia{RedditVideo: &redditVideo{
			FallbackURL: "https://v.redd.it/" + id + "/DASH_720.mp4?source=fallback",
		}},
	}
}

func textPost(id string) post {
	return post{ID: id, Title: "Text " + id, IsSelf: true, Selftext: "hello"}
}

func collect(t *testing.T, s *Source, sub string, limit int) ([]domain.ContentItem, error) {
	t.Helper()
	var items []domain.ContentItem
	for item, err := range s.FetchCandidates(context.Background(), sub, limit) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestFetchCandidates_FiltersNonVideo(t *testing.T) {
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/r/videos/new.json", req.URL.Path)
		assert.Equal(t, "1", req.URL.Query().Get("raw_json"))
		assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
		return response(http.StatusOK, page("", redditVideoPost("abc123"), textPost("t1"), redditVideoPost("def456"))), nil
	})

	items, err := collect(t, s, "videos", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: "abc123"}, first.Key)
	assert.True(t, first.MediaRef.IsDirect())
	assert.Contains(t, first.MediaRef.URL, "v.redd.it/abc123")
	assert.Equal(t, "https://reddit.com/r/videos/comments/abc123/x/", first.Permalink)
	assert.Equal(t, "Video abc123", first.Text)
	assert.Equal(t, "def456", items[1].Key.ItemID)
}

func TestFetchCandidates_PaginatesUntilLimit(t *testing.T) {
	var calls atomic.Int32
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		switch req.URL.Query().Get("after") {
		case "":
			assert.Equal(t, "3", req.URL.Query().Get("limit"))
			return response(http.StatusOK, page("t3_b", redditVideoPost("a"), redditVideoPost("b"))), nil
		case "t3_b":
			assert.Equal(t, "1", req.URL.Query().Get("limit"))
			return response(http.StatusOK, page("t3_c", redditVideoPost("c"))), nil
		}
		t.Fatalf("unexpected page %s", req.URL)
		return nil, nil
	})

	items, err := collect(t, s, "videos", 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCandidates_FewerThanLimit(t *testing.T) {
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusOK, page("", redditVideoPost("only"))), nil
	})

	items, err := collect(t, s, "videos", 25)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFetchCandidates_IsLazy(t *testing.T) {
	var calls atomic.Int32
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusOK, page("next", redditVideoPost("a"), redditVideoPost("b"))), nil
	})

	seq := s.FetchCandidates(context.Background(), "videos", 100)
	assert.Equal(t, int32(0), calls.Load())

	for range seq {
		break
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchCandidates_NotRestartable(t *testing.T) {
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusOK, page("", redditVideoPost("a"))), nil
	})

	seq := s.FetchCandidates(context.Background(), "videos", 5)
	for range seq {
	}

	var errs []error
	for _, err := range seq {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], source.ErrConsumed)
}

func TestFetchCandidates_RateLimitedRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusTooManyRequests, `{"message":"Too Many Requests"}`), nil
	})

	_, err := collect(t, s, "videos", 5)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCandidates_TransientRecovers(t *testing.T) {
	var calls atomic.Int32
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		return response(http.StatusOK, page("", redditVideoPost("a"))), nil
	})

	items, err := collect(t, s, "videos", 5)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFetchCandidates_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	s := newTestSource(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusNotFound, `{}`), nil
	})

	_, err := collect(t, s, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVideoRef(t *testing.T) {
	tests := []struct {
		name     string
		post     post
		ok       bool
		provider string
		slug     string
	}{
		{name: "reddit video", post: redditVideoPost("a"), ok: true},
		{name: "reddit video without media", post: post{IsVideo: true}, ok: false},
		{name: "secure media", post: post{IsVideo: true, SecureMedia: &postMedia{RedditVideo: &redditVideo{FallbackURL: "https://v.redd.it/x"}}}, ok: true},
		{name: "crosspost", post: post{URL: "https://reddit.com/r/x", CrosspostParents: []post{redditVideoPost("p")}}, ok: true},
		{name: "gfycat", post: post{URL: "https://gfycat.com/HappyDog"}, ok: true, provider: media.ProviderGfycat, slug: "HappyDog"},
		{name: "imgur gifv", post: post{URL: "https://i.imgur.com/aBcD.gifv"}, ok: true, provider: media.ProviderImgur},
		{name: "imgur image", post: post{URL: "https://i.imgur.com/aBcD.jpg"}, ok: false},
		{name: "streamable", post: post{URL: "https://streamable.com/x1y2"}, ok: true, provider: media.ProviderStreamable, slug: "x1y2"},
		{name: "hls", post: post{URL: "https://cdn.example.com/live/master.m3u8"}, ok: true, provider: media.ProviderHLS},
		{name: "direct mp4", post: post{URL: "https://cdn.example.com/clip.mp4"}, ok: true},
		{name: "youtube", post: post{URL: "https://www.youtube.com/watch?v=x"}, ok: false},
		{name: "image", post: post{URL: "https://i.redd.it/x.jpg"}, ok: false},
		{name: "self post", post: textPost("t"), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := videoRef(tt.post)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.provider, ref.Provider)
				assert.Equal(t, tt.slug, ref.Slug)
			}
		})
	}
}

func TestToItem_IncludesSelftext(t *testing.T) {
	s := newTestSource(nil)
	p := redditVideoPost("a")
	p.Selftext = "  more context  "

	item, ok := s.toItem("videos", p)
	require.True(t, ok)
	assert.Equal(t, "Video a\n\nmore context", item.Text)
}

func TestToItem_CapsLongSelftext(t *testing.T) {
	s := newTestSource(nil)
	p := redditVideoPost("a")
	p.Selftext = strings.Repeat("é", 200)

	item, ok := s.toItem("videos", p)
	require.True(t, ok)
	assert.Equal(t, "Video a\n\n"+strings.Repeat("é", 150)+"...", item.Text)
}
