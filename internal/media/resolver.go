package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"video_reposter/internal/domain"
)

const (
	ProviderDirect     = ""
	ProviderImgur      = "imgur"
	ProviderGfycat     = "gfycat"
	ProviderStreamable = "streamable"
	ProviderHLS        = "hls"
)

// Resolution is the ordered list of URLs whose bodies, concatenated, form
// the media file.
type Resolution struct {
	URLs []string
	// Segmented is set for HLS output, which is validated as MPEG-TS when
	// no container signature is found.
	Segmented bool
}

type Resolver interface {
	Resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error)
}

type ResolverFunc func(ctx context.Context, ref domain.MediaRef) (Resolution, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error) {
	return f(ctx, ref)
}

type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// DefaultRegistry registers every built-in provider against the public
// endpoints.
func DefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()
	r.Register(ProviderDirect, ResolverFunc(resolveDirect))
	r.Register(ProviderImgur, ResolverFunc(resolveImgur))
	r.Register(ProviderGfycat, &GfycatResolver{Client: client, BaseURL: "https://api.gfycat.com"})
	r.Register(ProviderStreamable, &StreamableResolver{Client: client, BaseURL: "https://api.streamable.com"})
	r.Register(ProviderHLS, &HLSResolver{Client: client})
	return r
}

func (r *Registry) Register(provider string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[provider] = resolver
}

func (r *Registry) Lookup(provider string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resolvers[provider]
	return res, ok
}

func resolveDirect(_ context.Context, ref domain.MediaRef) (Resolution, error) {
	if ref.URL == "" {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve direct", fmt.Errorf("empty url"))
	}
	return Resolution{URLs: []string{ref.URL}}, nil
}

// imgur serves .gifv as an HTML page wrapping the .mp4 of the same name.
func resolveImgur(_ context.Context, ref domain.MediaRef) (Resolution, error) {
	if ref.URL == "" {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve imgur", fmt.Errorf("empty url"))
	}
	return Resolution{URLs: []string{strings.Replace(ref.URL, ".gifv", ".mp4", 1)}}, nil
}

type GfycatResolver struct {
	Client  *http.Client
	BaseURL string
}

func (g *GfycatResolver) Resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error) {
	var body struct {
		GfyItem struct {
			Mp4URL string `json:"mp4Url"`
		} `json:"gfyItem"`
	}
	if err := getJSON(ctx, g.Client, g.BaseURL+"/v1/gfycats/"+slugOf(ref), &body); err != nil {
		return Resolution{}, err
	}
	if body.GfyItem.Mp4URL == "" {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve gfycat", fmt.Errorf("no mp4 for %s", slugOf(ref)))
	}
	return Resolution{URLs: []string{body.GfyItem.Mp4URL}}, nil
}

type StreamableResolver struct {
	Client  *http.Client
	BaseURL string
}

func (s *StreamableResolver) Resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error) {
	var body struct {
		Files map[string]struct {
			URL string `json:"url"`
		} `json:"files"`
	}
	if err := getJSON(ctx, s.Client, s.BaseURL+"/videos/"+slugOf(ref), &body); err != nil {
		return Resolution{}, err
	}

	u := body.Files["mp4"].URL
	if u == "" {
		return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve streamable", fmt.Errorf("no mp4 for %s", slugOf(ref)))
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return Resolution{URLs: []string{u}}, nil
}

func slugOf(ref domain.MediaRef) string {
	if ref.Slug != "" {
		return ref.Slug
	}
	u := strings.TrimRight(ref.URL, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	if i := strings.IndexAny(u, "?#."); i >= 0 {
		u = u[:i]
	}
	return u
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	resp, err := get(ctx, client, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewError(domain.KindMediaUnavailable, "read embed", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewError(domain.KindMediaInvalid, "decode embed", err)
	}
	return nil
}

// get issues a GET and maps every failure to MediaUnavailable. Missing
// content (404, 410) is included: it may have been removed after discovery.
func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindMediaInvalid, "build request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindMediaUnavailable, "fetch "+url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, domain.NewError(domain.KindMediaUnavailable, "fetch "+url,
			fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}
	return resp, nil
}
