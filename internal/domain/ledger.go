package domain

import "time"

type LedgerRecord struct {
	Key               ItemKey   `json:"key"`
	DestinationID     string    `json:"destination_id"`
	DestinationPostID string    `json:"destination_post_id"`
	PublishedAt       time.Time `json:"published_at"`
}

// PendingPost marks an item whose publish attempt ended without a clear
// answer. The item is not published again until the marker is resolved.
type PendingPost struct {
	Key           ItemKey   `json:"key"`
	DestinationID string    `json:"destination_id"`
	MediaID       string    `json:"media_id,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

type RouterCursor struct {
	PoolID    string    `db:"pool_id" json:"pool_id"`
	Position  int64     `db:"position" json:"position"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
