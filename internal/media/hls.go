package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"

	"video_reposter/internal/domain"
)

// maxPlaylistHops bounds master to media indirection.
const maxPlaylistHops = 3

// HLSResolver flattens a playlist into its segment URLs. For a master
// playlist the highest bandwidth variant wins.
type HLSResolver struct {
	Client *http.Client
}

func (h *HLSResolver) Resolve(ctx context.Context, ref domain.MediaRef) (Resolution, error) {
	playlistURL := ref.URL

	for hop := 0; hop < maxPlaylistHops; hop++ {
		base, err := url.Parse(playlistURL)
		if err != nil {
			return Resolution{}, domain.NewError(domain.KindMediaInvalid, "parse playlist url", err)
		}

		playlist, listType, err := h.fetch(ctx, playlistURL)
		if err != nil {
			return Resolution{}, err
		}

		switch listType {
		case m3u8.MASTER:
			master := playlist.(*m3u8.MasterPlaylist)
			var best *m3u8.Variant
			for _, v := range master.Variants {
				if v == nil || v.URI == "" {
					continue
				}
				if best == nil || v.Bandwidth > best.Bandwidth {
					best = v
				}
			}
			if best == nil {
				return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve hls", fmt.Errorf("master playlist has no variants"))
			}
			playlistURL = resolveRef(base, best.URI)

		case m3u8.MEDIA:
			media := playlist.(*m3u8.MediaPlaylist)
			var urls []string
			if media.Map != nil && media.Map.URI != "" {
				urls = append(urls, resolveRef(base, media.Map.URI))
			}
			for _, seg := range media.Segments {
				if seg == nil {
					break
				}
				urls = append(urls, resolveRef(base, seg.URI))
			}
			if len(urls) == 0 {
				return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve hls", fmt.Errorf("media playlist has no segments"))
			}
			return Resolution{URLs: urls, Segmented: true}, nil
		}
	}

	return Resolution{}, domain.NewError(domain.KindMediaInvalid, "resolve hls", fmt.Errorf("too many playlist hops"))
}

func (h *HLSResolver) fetch(ctx context.Context, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	resp, err := get(ctx, h.Client, playlistURL)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, 0, domain.NewError(domain.KindMediaInvalid, "decode playlist", err)
	}
	return playlist, listType, nil
}

// resolveRef resolves a playlist entry against the playlist URL and keeps
// the playlist's query string when the entry has none, since CDN auth
// tokens usually travel there.
func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	resolved := base.ResolveReference(u)
	if resolved.RawQuery == "" && !u.IsAbs() {
		resolved.RawQuery = base.RawQuery
	}
	return resolved.String()
}
