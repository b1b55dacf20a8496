// Package media turns a MediaRef into a validated local video file.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"
	"github.com/zeebo/xxh3"

	"video_reposter/internal/domain"
)

const partialExt = ".part"

type Options struct {
	// MaxBytes caps a single download. Zero disables the cap.
	MaxBytes int64
	// CacheTTL is how long a provider resolution is reused.
	CacheTTL time.Duration
}

type Fetcher struct {
	client   *http.Client
	registry *Registry
	cache    *cache.Cache
	maxBytes int64
	logger   *slog.Logger
}

func NewFetcher(client *http.Client, registry *Registry, opts Options, logger *slog.Logger) *Fetcher {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Fetcher{
		client:   client,
		registry: registry,
		cache:    cache.New(ttl, ttl+5*time.Minute),
		maxBytes: opts.MaxBytes,
		logger:   logger,
	}
}

// ResolveAndDownload resolves ref and streams the media into downloadDir.
// On any failure no file is left behind.
func (f *Fetcher) ResolveAndDownload(ctx context.Context, key domain.ItemKey, ref domain.MediaRef, downloadDir string) (*domain.MediaPayload, error) {
	logger := f.logger.With("item", key.String(), "provider", providerName(ref))

	res, err := f.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	base := filepath.Join(downloadDir, FileBase(key))
	partial := base + partialExt

	size, err := f.download(ctx, res.URLs, partial)
	if err != nil {
		_ = os.Remove(partial)
		return nil, err
	}

	kind, ext, err := validate(partial, size, res.Segmented)
	if err != nil {
		_ = os.Remove(partial)
		return nil, err
	}

	final := base + ext
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return nil, fmt.Errorf("rename download: %w", err)
	}

	logger.Info("media downloaded",
		"path", final,
		"mime", kind,
		"size", humanize.Bytes(uint64(size)),
	)

	return &domain.MediaPayload{Path: final, MimeKind: kind, SizeBytes: size}, nil
}

func (f *Fetcher) resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error) {
	cacheKey := ref.Provider + "|" + ref.URL + "|" + ref.Slug
	if x, found := f.cache.Get(cacheKey); found {
		return x.(Resolution), nil
	}

	resolver, ok := f.registry.Lookup(ref.Provider)
	if !ok {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve media",
			fmt.Errorf("unknown provider %q", ref.Provider))
	}

	res, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}
	if len(res.URLs) == 0 {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve media", fmt.Errorf("no media urls"))
	}

	f.cache.Set(cacheKey, res, cache.DefaultExpiration)
	return res, nil
}

func (f *Fetcher) download(ctx context.Context, urls []string, path string) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create download file: %w", err)
	}

	var total int64
	for _, u := range urls {
		n, err := f.copyURL(ctx, u, out, total)
		total += n
		if err != nil {
			out.Close()
			return total, err
		}
	}

	if err := out.Close(); err != nil {
		return total, fmt.Errorf("close download file: %w", err)
	}
	return total, nil
}

func (f *Fetcher) copyURL(ctx context.Context, u string, w io.Writer, written int64) (int64, error) {
	resp, err := get(ctx, f.client, u)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes-written+1)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return n, fmt.Errorf("write download: %w", err)
		}
		return n, domain.NewError(domain.KindMediaUnavailable, "download "+u, err)
	}
	if f.maxBytes > 0 && written+n > f.maxBytes {
		return n, domain.NewError(domain.KindMediaInvalid, "download "+u,
			fmt.Errorf("media exceeds %s", humanize.Bytes(uint64(f.maxBytes))))
	}
	return n, nil
}

// RemovePartials deletes downloads left behind by an interrupted run.
func (f *Fetcher) RemovePartials(downloadDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(downloadDir, "*"+partialExt))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove partial download: %w", err)
		}
		removed++
	}
	if removed > 0 {
		f.logger.Info("removed partial downloads", "dir", downloadDir, "count", removed)
	}
	return removed, nil
}

// FileBase is the download file name for key without extension. The hash
// keeps names distinct for items whose ids sanitize to the same string.
func FileBase(key domain.ItemKey) string {
	return fmt.Sprintf("%s-%016x", sanitize(key.ItemID), xxh3.HashString(key.String()))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "item"
	}
	return b.String()
}

func providerName(ref domain.MediaRef) string {
	if ref.IsDirect() {
		return "direct"
	}
	return ref.Provider
}
