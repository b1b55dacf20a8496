// Package pipeline runs one ingestion pass: collect candidates from every
// source, drop what was already published, download, route, publish and
// record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"video_reposter/internal/domain"
	"video_reposter/internal/passlock"
	"video_reposter/internal/publisher"
	"video_reposter/internal/retry"
)

var ErrPassInProgress = errors.New("a pass is already in progress")

const (
	markTimeout = 10 * time.Second

	// channelTextLimit leaves room for the source line within a post.
	channelTextLimit = 250
)

type State string

const (
	StateIdle               State = "idle"
	StateEnumeratingSources State = "enumerating_sources"
	StateFetchingCandidates State = "fetching_candidates"
	StateDeduping           State = "deduping"
	StateDownloadingMedia   State = "downloading_media"
	StateRouting            State = "routing"
	StatePublishing         State = "publishing"
	StateRecordingLedger    State = "recording_ledger"
)

type SourceSpec struct {
	Kind  domain.SourceKind
	ID    string
	Limit int
}

type Config struct {
	Sources            []SourceSpec
	Destinations       []domain.DestinationAccount
	DownloadDir        string
	IncludeTextContent bool
	AppendSourceLink   bool
	// Workers bounds how many items may be downloaded or waiting to be
	// published at once. One means fully sequential.
	Workers int
	// Retry applies to downloads. Publish retries live in the publisher.
	Retry retry.Policy
}

type Deps struct {
	Sources   []Source
	Fetcher   MediaFetcher
	Ledger    Ledger
	Router    Router
	Publisher Publisher
	Events    EventSink
	Lock      Locker
	Logger    *slog.Logger
}

type partialCleaner interface {
	RemovePartials(downloadDir string) (int, error)
}

type Pipeline struct {
	sources   map[domain.SourceKind]Source
	fetcher   MediaFetcher
	ledger    Ledger
	router    Router
	publisher Publisher
	events    EventSink
	lock      Locker
	logger    *slog.Logger
	config    Config
	now       func() time.Time
}

func New(deps Deps, cfg Config) *Pipeline {
	sources := make(map[domain.SourceKind]Source, len(deps.Sources))
	for _, s := range deps.Sources {
		sources[s.Kind()] = s
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	lock := deps.Lock
	if lock == nil {
		lock = passlock.NewLocal()
	}

	return &Pipeline{
		sources:   sources,
		fetcher:   deps.Fetcher,
		ledger:    deps.Ledger,
		router:    deps.Router,
		publisher: deps.Publisher,
		events:    deps.Events,
		lock:      lock,
		logger:    deps.Logger,
		config:    cfg,
		now:       time.Now,
	}
}

// pass carries the state of one RunPass call.
type pass struct {
	id      string
	summary *domain.PassSummary
	seen    map[domain.ItemKey]struct{}
	logger  *slog.Logger
}

// RunPass performs one full pass over every configured source. Per-item and
// per-source failures are reported in the summary; an error is returned
// only when the pass could not run at all or was cancelled.
func (p *Pipeline) RunPass(ctx context.Context) (*domain.PassSummary, error) {
	if len(p.config.Destinations) == 0 {
		return nil, domain.NewError(domain.KindNoDestinationsConfigured, "run pass", nil)
	}

	release, err := p.lock.Acquire(ctx)
	if errors.Is(err, passlock.ErrHeld) {
		return nil, ErrPassInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire pass lock: %w", err)
	}
	defer release()

	startTime := p.now()
	ps := &pass{
		id:      uuid.NewString(),
		summary: domain.NewPassSummary("", startTime),
		seen:    make(map[domain.ItemKey]struct{}),
	}
	ps.summary.PassID = ps.id
	ps.logger = p.logger.With("pass_id", ps.id)

	ps.logger.Info("starting pass",
		"sources", len(p.config.Sources),
		"destinations", len(p.config.Destinations),
		"workers", p.config.Workers,
	)

	if err := p.ledger.Load(ctx); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if err := p.router.Load(ctx); err != nil {
		return nil, fmt.Errorf("load router: %w", err)
	}
	if c, ok := p.fetcher.(partialCleaner); ok {
		if _, err := c.RemovePartials(p.config.DownloadDir); err != nil {
			ps.logger.Warn("failed to remove partial downloads", "error", err)
		}
	}

	p.state(ps.logger, StateEnumeratingSources)
	for _, spec := range p.config.Sources {
		if ctx.Err() != nil {
			break
		}
		p.runSource(ctx, ps, spec)
	}

	ps.summary.Duration = time.Since(startTime)
	p.state(ps.logger, StateIdle)

	if err := p.events.PassCompleted(ctx, ps.summary); err != nil {
		ps.logger.Warn("failed to emit pass summary", "error", err)
	}

	if err := ctx.Err(); err != nil {
		return ps.summary, fmt.Errorf("pass interrupted: %w", err)
	}
	return ps.summary, nil
}

func (p *Pipeline) runSource(ctx context.Context, ps *pass, spec SourceSpec) {
	stats := &domain.SourceStats{Kind: spec.Kind, SourceID: spec.ID}
	ps.summary.Sources = append(ps.summary.Sources, stats)
	logger := ps.logger.With("source", string(spec.Kind), "source_id", spec.ID)

	p.state(logger, StateFetchingCandidates)
	items, err := p.collect(ctx, spec)
	if err != nil {
		stats.Error = err.Error()
		ps.summary.SourceErrors++
		logger.Error("source failed, skipping for this pass", "error", err)
		p.emit(ctx, ps, domain.ItemEvent{
			Key:     domain.ItemKey{Kind: spec.Kind, SourceID: spec.ID},
			Kind:    kindName(err),
			Message: err.Error(),
		})
		return
	}

	stats.Discovered = len(items)
	ps.summary.Discovered += len(items)

	p.state(logger, StateDeduping)
	var fresh []domain.ContentItem
	for _, item := range items {
		_, dup := ps.seen[item.Key]
		if dup || p.ledger.HasPosted(item.Key) {
			stats.SkippedDuplicate++
			ps.summary.SkippedDuplicate++
			logger.Debug("skipping already published item", "item", item.Key.String())
			continue
		}
		ps.seen[item.Key] = struct{}{}
		if pending, ok := p.ledger.Pending(item.Key); ok && !p.resolvePending(ctx, ps, logger, pending) {
			continue
		}
		fresh = append(fresh, item)
	}

	logger.Info("candidates collected",
		"discovered", stats.Discovered,
		"skipped_duplicate", stats.SkippedDuplicate,
		"to_publish", len(fresh),
	)

	p.processItems(ctx, ps, stats, fresh)

	logger.Info("source done",
		"published", stats.Published,
		"failed", stats.Failed,
	)
}

func (p *Pipeline) collect(ctx context.Context, spec SourceSpec) ([]domain.ContentItem, error) {
	src, ok := p.sources[spec.Kind]
	if !ok {
		return nil, domain.NewError(domain.KindSourceUnavailable, "collect",
			fmt.Errorf("no adapter for source kind %q", spec.Kind))
	}

	var items []domain.ContentItem
	for item, err := range src.FetchCandidates(ctx, spec.ID, spec.Limit) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type download struct {
	payload *domain.MediaPayload
	err     error
	// slotted is set when the download holds a worker slot.
	slotted bool
}

// processItems downloads up to Workers items ahead while publishing
// strictly in candidate order. A worker slot is held from the start of a
// download until its item is fully handled, which bounds the number of
// files on disk.
func (p *Pipeline) processItems(ctx context.Context, ps *pass, stats *domain.SourceStats, items []domain.ContentItem) {
	if len(items) == 0 {
		return
	}

	results := make([]chan download, len(items))
	for i := range results {
		results[i] = make(chan download, 1)
	}
	slots := make(chan struct{}, p.config.Workers)

	var g errgroup.Group
	g.Go(func() error {
		for i, item := range items {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				for j := i; j < len(items); j++ {
					results[j] <- download{err: ctx.Err()}
				}
				return nil
			}

			g.Go(func() error {
				payload, err := p.download(ctx, ps, item)
				results[i] <- download{payload: payload, err: err, slotted: true}
				return nil
			})
		}
		return nil
	})

	for i, item := range items {
		res := <-results[i]
		if ctx.Err() != nil {
			releasePayload(ps.logger, res.payload)
		} else {
			p.handleItem(ctx, ps, stats, item, res)
		}
		if res.slotted {
			<-slots
		}
	}

	_ = g.Wait()
}

func (p *Pipeline) download(ctx context.Context, ps *pass, item domain.ContentItem) (*domain.MediaPayload, error) {
	p.state(ps.logger.With("item", item.Key.String()), StateDownloadingMedia)

	var payload *domain.MediaPayload
	err := p.config.Retry.Do(ctx, ps.logger, "download "+item.Key.String(), func(ctx context.Context, _ int) error {
		var err error
		payload, err = p.fetcher.ResolveAndDownload(ctx, item.Key, item.MediaRef, p.config.DownloadDir)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Pipeline) handleItem(ctx context.Context, ps *pass, stats *domain.SourceStats, item domain.ContentItem, res download) {
	logger := ps.logger.With("item", item.Key.String())

	if res.err != nil {
		p.abandon(ctx, ps, stats, item, "", res.err)
		return
	}
	defer releasePayload(logger, res.payload)

	p.state(logger, StateRouting)
	destID, err := p.router.Select(p.config.Destinations, item)
	if err != nil {
		p.abandon(ctx, ps, stats, item, "", err)
		return
	}
	account, ok := p.account(destID)
	if !ok {
		p.abandon(ctx, ps, stats, item, destID, domain.NewError(domain.KindDestinationRejected, "route",
			fmt.Errorf("router chose unknown destination %s", destID)))
		return
	}

	p.state(logger, StatePublishing)
	caption := p.caption(item)
	postID, err := p.publisher.Publish(ctx, account, res.payload, caption)
	if err != nil {
		if domain.IsUncertain(err) {
			p.markUncertain(ctx, logger, domain.PendingPost{
				Key:           item.Key,
				DestinationID: destID,
				MediaID:       domain.RefOf(err),
				Caption:       caption,
				AttemptedAt:   p.now().UTC(),
			})
		}
		p.abandon(ctx, ps, stats, item, destID, err)
		return
	}

	p.state(logger, StateRecordingLedger)
	_, err = p.ledger.Record(ctx, item.Key, destID, postID)
	switch {
	case err == nil:
		stats.Published++
		ps.summary.Published++
		ps.summary.Destinations[destID]++
		logger.Info("item published", "destination", destID, "post_id", postID)
	case errors.Is(err, domain.ErrDuplicateKey):
		// another run published the same item between our check and record
		stats.SkippedDuplicate++
		ps.summary.SkippedDuplicate++
		logger.Warn("item was recorded concurrently", "destination", destID, "post_id", postID, "error", err)
	default:
		ps.summary.Inconsistent++
		logger.Error("published item could not be recorded",
			"destination", destID,
			"post_id", postID,
			"error", err,
		)
		p.emit(ctx, ps, domain.ItemEvent{
			Key:          item.Key,
			Kind:         kindName(err),
			Message:      err.Error(),
			Destination:  destID,
			PostID:       postID,
			Inconsistent: true,
		})
	}

	if err := p.router.Commit(ctx, destID); err != nil {
		logger.Warn("failed to advance router", "destination", destID, "error", err)
	}
}

// markUncertain persists that the item may already be live on the
// destination. It runs even when the pass context is done, since a timeout
// is the usual cause of the uncertainty.
func (p *Pipeline) markUncertain(ctx context.Context, logger *slog.Logger, pending domain.PendingPost) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if err := p.ledger.MarkUncertain(ctx, pending); err != nil {
		logger.Error("failed to persist pending marker, item may be published twice",
			"destination", pending.DestinationID,
			"error", err,
		)
		return
	}
	logger.Warn("publish outcome unknown, item held until resolved",
		"destination", pending.DestinationID,
		"media_id", pending.MediaID,
	)
}

// resolvePending settles an item whose earlier publish outcome was unknown
// and reports whether it may be published now. Items that cannot be settled
// stay held for manual resolution.
func (p *Pipeline) resolvePending(ctx context.Context, ps *pass, logger *slog.Logger, pending domain.PendingPost) bool {
	logger = logger.With("item", pending.Key.String(), "destination", pending.DestinationID)

	postID, found, err := p.publisher.Reconcile(ctx, pending)
	switch {
	case err != nil:
		ps.summary.HeldUncertain++
		logger.Warn("item held, earlier post unresolved", "attempted_at", pending.AttemptedAt, "error", err)
		return false
	case found:
		_, err := p.ledger.Record(ctx, pending.Key, pending.DestinationID, postID)
		if err != nil && !errors.Is(err, domain.ErrDuplicateKey) {
			ps.summary.HeldUncertain++
			logger.Error("earlier post found but not recorded", "post_id", postID, "error", err)
			return false
		}
		ps.summary.Reconciled++
		logger.Info("earlier post found and recorded", "post_id", postID)
		return false
	default:
		if err := p.ledger.ClearPending(ctx, pending.Key); err != nil {
			ps.summary.HeldUncertain++
			logger.Error("failed to clear pending marker", "error", err)
			return false
		}
		logger.Info("earlier post confirmed absent, item eligible again")
		return true
	}
}

func (p *Pipeline) abandon(ctx context.Context, ps *pass, stats *domain.SourceStats, item domain.ContentItem, destID string, err error) {
	stats.Failed++
	ps.summary.Failed++

	event := domain.ItemEvent{
		Key:         item.Key,
		Kind:        kindName(err),
		Message:     err.Error(),
		Destination: destID,
	}
	ps.summary.Abandoned = append(ps.summary.Abandoned, p.emit(ctx, ps, event))
}

func (p *Pipeline) emit(ctx context.Context, ps *pass, event domain.ItemEvent) domain.ItemEvent {
	event.PassID = ps.id
	event.At = p.now().UTC()
	if err := p.events.ItemAbandoned(ctx, event); err != nil {
		ps.logger.Warn("failed to emit item event", "item", event.Key.String(), "error", err)
	}
	return event
}

func (p *Pipeline) caption(item domain.ContentItem) string {
	var parts []string
	if p.config.IncludeTextContent {
		text := strings.TrimSpace(item.Text)
		if item.Key.Kind == domain.SourceChannel {
			if text == "" {
				text = "Video from " + item.Key.SourceID
			}
			text = publisher.Truncate(text, channelTextLimit)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	if p.config.AppendSourceLink && item.Permalink != "" {
		parts = append(parts, "Source: "+item.Permalink)
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) account(id string) (domain.DestinationAccount, bool) {
	for _, d := range p.config.Destinations {
		if d.ID == id {
			return d, true
		}
	}
	return domain.DestinationAccount{}, false
}

func (p *Pipeline) state(logger *slog.Logger, s State) {
	logger.Debug("pipeline state", "state", string(s))
}

func kindName(err error) string {
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}

func releasePayload(logger *slog.Logger, payload *domain.MediaPayload) {
	if err := payload.Release(); err != nil {
		logger.Warn("failed to release payload", "path", payload.Path, "error", err)
	}
}
