package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video_reposter/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var testKey = domain.ItemKey{Kind: domain.SourceListing, SourceID: "videos", ItemID: "abc123"}

// mp4Bytes is an ftyp box followed by an empty free box.
func mp4Bytes() []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0x18})
	b.WriteString("ftypisom")
	b.Write([]byte{0, 0, 2, 0})
	b.WriteString("isommp41")
	b.Write([]byte{0, 0, 0, 8})
	b.WriteString("free")
	b.Write(bytes.Repeat([]byte{0}, 512))
	return b.Bytes()
}

func tsPacket() []byte {
	p := make([]byte, tsPacketSize)
	p[0] = 0x47
	for i := 4; i < len(p); i++ {
		p[i] = 0xff
	}
	return p
}

func newFetcher(srv *httptest.Server, maxBytes int64) *Fetcher {
	registry := NewRegistry()
	registry.Register(ProviderDirect, ResolverFunc(resolveDirect))
	registry.Register(ProviderImgur, ResolverFunc(resolveImgur))
	registry.Register(ProviderGfycat, &GfycatResolver{Client: srv.Client(), BaseURL: srv.URL})
	registry.Register(ProviderStreamable, &StreamableResolver{Client: srv.Client(), BaseURL: srv.URL})
	registry.Register(ProviderHLS, &HLSResolver{Client: srv.Client()})
	return NewFetcher(srv.Client(), registry, Options{MaxBytes: maxBytes}, discard)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetcher_DirectDownload(t *testing.T) {
	video := mp4Bytes()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(video)
	}))
	defer srv.Close()

	dir := t.TempDir()
	payload, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey,
		domain.MediaRef{URL: srv.URL + "/DASH_720.mp4"}, dir)
	require.NoError(t, err)

	assert.Equal(t, "video/mp4", payload.MimeKind)
	assert.Equal(t, int64(len(video)), payload.SizeBytes)
	assert.Equal(t, filepath.Join(dir, FileBase(testKey)+".mp4"), payload.Path)
	assert.True(t, strings.HasPrefix(filepath.Base(payload.Path), "abc123-"))

	data, err := os.ReadFile(payload.Path)
	require.NoError(t, err)
	assert.Equal(t, video, data)

	require.NoError(t, payload.Release())
	require.NoError(t, payload.Release())
	assert.Empty(t, listDir(t, dir))
}

func TestFetcher_InvalidContainerLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>removed</body></html>")
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey, domain.MediaRef{URL: srv.URL}, dir)

	assert.ErrorIs(t, err, domain.ErrMediaInvalid)
	assert.Empty(t, listDir(t, dir))
}

func TestFetcher_EmptyBodyIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey, domain.MediaRef{URL: srv.URL}, dir)

	assert.ErrorIs(t, err, domain.ErrMediaInvalid)
	assert.Empty(t, listDir(t, dir))
}

func TestFetcher_HTTPErrorsAreUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			dir := t.TempDir()
			_, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey, domain.MediaRef{URL: srv.URL}, dir)

			assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
			assert.True(t, domain.IsRetryable(err))
			assert.Empty(t, listDir(t, dir))
		})
	}
}

func TestFetcher_TransportFailureRemovesPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write(mp4Bytes())
		w.(http.Flusher).Flush()
		// the connection drops before the advertised length is sent
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey, domain.MediaRef{URL: srv.URL}, dir)

	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
	assert.Empty(t, listDir(t, dir))
}

func TestFetcher_MaxBytes(t *testing.T) {
	video := mp4Bytes()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(video)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newFetcher(srv, int64(len(video)-1)).ResolveAndDownload(context.Background(), testKey, domain.MediaRef{URL: srv.URL}, dir)

	assert.ErrorIs(t, err, domain.ErrMediaInvalid)
	assert.Empty(t, listDir(t, dir))
}

func TestFetcher_UnknownProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey,
		domain.MediaRef{Provider: "youtube", URL: "https://youtube.com/watch?v=x"}, t.TempDir())

	assert.ErrorIs(t, err, domain.ErrMediaInvalid)
	assert.False(t, domain.IsRetryable(err))
}

func TestFetcher_Imgur(t *testing.T) {
	var requested atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Store(r.URL.Path)
		w.Write(mp4Bytes())
	}))
	defer srv.Close()

	payload, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey,
		domain.MediaRef{Provider: ProviderImgur, URL: srv.URL + "/aBcD.gifv"}, t.TempDir())
	require.NoError(t, err)
	defer payload.Release()

	assert.Equal(t, "/aBcD.mp4", requested.Load())
}

func TestFetcher_GfycatResolvedOnceAndCached(t *testing.T) {
	var lookups atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v1/gfycats/HappyDog", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		fmt.Fprintf(w, `{"gfyItem":{"mp4Url":%q}}`, srv.URL+"/files/HappyDog.mp4")
	})
	mux.HandleFunc("/files/HappyDog.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write(mp4Bytes())
	})

	f := newFetcher(srv, 0)
	ref := domain.MediaRef{Provider: ProviderGfycat, URL: "https://gfycat.com/HappyDog"}
	for i := 0; i < 2; i++ {
		payload, err := f.ResolveAndDownload(context.Background(), testKey, ref, t.TempDir())
		require.NoError(t, err)
		payload.Release()
	}

	assert.Equal(t, int32(1), lookups.Load())
}

func TestFetcher_Streamable(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/videos/x1y2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"files":{"mp4":{"url":%q}}}`, srv.URL+"/cdn/x1y2.mp4")
	})
	mux.HandleFunc("/cdn/x1y2.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write(mp4Bytes())
	})

	payload, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey,
		domain.MediaRef{Provider: ProviderStreamable, Slug: "x1y2"}, t.TempDir())
	require.NoError(t, err)
	defer payload.Release()
	assert.Equal(t, "video/mp4", payload.MimeKind)
}

func TestFetcher_HLSPicksHighestBandwidth(t *testing.T) {
	var lowHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/live/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=500000\n"+
			"low/index.m3u8\n"+
			"#EXT-X-STREAM-INF:BANDWIDTH=2000000\n"+
			"high/index.m3u8\n")
	})
	mux.HandleFunc("/live/low/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		lowHits.Add(1)
	})
	mux.HandleFunc("/live/high/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n"+
			"#EXT-X-VERSION:3\n"+
			"#EXT-X-TARGETDURATION:2\n"+
			"#EXT-X-MEDIA-SEQUENCE:0\n"+
			"#EXTINF:2.000,\n"+
			"seg0.ts\n"+
			"#EXTINF:2.000,\n"+
			"seg1.ts\n"+
			"#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/live/high/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tsPacket())
		w.Write(tsPacket())
	})
	mux.HandleFunc("/live/high/seg1.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tsPacket())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	payload, err := newFetcher(srv, 0).ResolveAndDownload(context.Background(), testKey,
		domain.MediaRef{Provider: ProviderHLS, URL: srv.URL + "/live/master.m3u8"}, t.TempDir())
	require.NoError(t, err)
	defer payload.Release()

	assert.Equal(t, int64(3*tsPacketSize), payload.SizeBytes)
	assert.True(t, strings.HasPrefix(payload.MimeKind, "video/"))
	assert.Equal(t, int32(0), lowHits.Load())
}

func TestFetcher_RemovePartials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("x"), 0o644))

	f := NewFetcher(http.DefaultClient, NewRegistry(), Options{}, discard)
	n, err := f.RemovePartials(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b.mp4"}, listDir(t, dir))
}

func TestFileBase(t *testing.T) {
	a := FileBase(domain.ItemKey{Kind: domain.SourceChannel, SourceID: "clips", ItemID: "clips/42"})
	b := FileBase(domain.ItemKey{Kind: domain.SourceChannel, SourceID: "clips", ItemID: "clips_42"})

	assert.True(t, strings.HasPrefix(a, "clips_42-"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, FileBase(domain.ItemKey{Kind: domain.SourceChannel, SourceID: "clips", ItemID: "clips/42"}))
}
