package pipeline

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"

	"video_reposter/internal/domain"
)

type Source interface {
	Kind() domain.SourceKind
	FetchCandidates(ctx context.Context, sourceID string, limit int) iter.Seq2[domain.ContentItem, error]
}

type MediaFetcher interface {
	ResolveAndDownload(ctx context.Context, key domain.ItemKey, ref domain.MediaRef, downloadDir string) (*domain.MediaPayload, error)
}

type Ledger interface {
	Load(ctx context.Context) error
	HasPosted(key domain.ItemKey) bool
	Record(ctx context.Context, key domain.ItemKey, destinationID, postID string) (domain.LedgerRecord, error)
	Pending(key domain.ItemKey) (domain.PendingPost, bool)
	MarkUncertain(ctx context.Context, pending domain.PendingPost) error
	ClearPending(ctx context.Context, key domain.ItemKey) error
}

type Router interface {
	Load(ctx context.Context) error
	Select(pool []domain.DestinationAccount, item domain.ContentItem) (string, error)
	Commit(ctx context.Context, destinationID string) error
}

type Publisher interface {
	Publish(ctx context.Context, account domain.DestinationAccount, payload *domain.MediaPayload, caption string) (string, error)
	Reconcile(ctx context.Context, pending domain.PendingPost) (string, bool, error)
}

type EventSink interface {
	ItemAbandoned(ctx context.Context, event domain.ItemEvent) error
	PassCompleted(ctx context.Context, summary *domain.PassSummary) error
}

type Locker interface {
	Acquire(ctx context.Context) (func(), error)
}
