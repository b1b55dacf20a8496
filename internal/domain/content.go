package domain

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type SourceKind string

const (
	SourceListing SourceKind = "listing"
	SourceChannel SourceKind = "channel"
)

func (k SourceKind) Valid() bool {
	return k == SourceListing || k == SourceChannel
}

// ItemKey identifies a content item across all passes. It is the dedup key.
type ItemKey struct {
	Kind     SourceKind `json:"source_kind" db:"source_kind"`
	SourceID string     `json:"source_id" db:"source_id"`
	ItemID   string     `json:"item_id" db:"item_id"`
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.SourceID, k.ItemID)
}

// MediaRef describes where the media of an item lives. An empty Provider
// means URL points at the file itself.
type MediaRef struct {
	Provider string `json:"provider,omitempty"`
	URL      string `json:"url,omitempty"`
	Slug     string `json:"slug,omitempty"`
}

func (r MediaRef) IsDirect() bool {
	return r.Provider == ""
}

type ContentItem struct {
	Key          ItemKey
	MediaRef     MediaRef
	Text         string
	Permalink    string
	DiscoveredAt time.Time
}

type MediaPayload struct {
	Path      string
	MimeKind  string
	SizeBytes int64

	releaseOnce sync.Once
	releaseErr  error
}

// Release removes the downloaded file. Safe to call more than once.
func (p *MediaPayload) Release() error {
	if p == nil {
		return nil
	}
	p.releaseOnce.Do(func() {
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			p.releaseErr = fmt.Errorf("remove %s: %w", p.Path, err)
		}
	})
	return p.releaseErr
}

type Credentials struct {
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

type DestinationAccount struct {
	ID             string
	Platform       string
	Credentials    Credentials
	RotationWeight int
}

func (a DestinationAccount) Weight() int {
	if a.RotationWeight < 1 {
		return 1
	}
	return a.RotationWeight
}
