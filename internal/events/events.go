// Package events delivers item and pass outcomes to operators and
// downstream consumers.
package events

import (
	"context"
	"errors"
	"log/slog"

	"video_reposter/internal/domain"
)

type Sink interface {
	ItemAbandoned(ctx context.Context, event domain.ItemEvent) error
	PassCompleted(ctx context.Context, summary *domain.PassSummary) error
}

// Logger writes events as structured log lines. Inconsistencies are logged
// at error level since they need an operator.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) ItemAbandoned(ctx context.Context, event domain.ItemEvent) error {
	attrs := []any{
		"pass_id", event.PassID,
		"item", event.Key.String(),
		"kind", string(event.Kind),
		"message", event.Message,
	}
	if event.Destination != "" {
		attrs = append(attrs, "destination", event.Destination)
	}
	if event.PostID != "" {
		attrs = append(attrs, "post_id", event.PostID)
	}

	if event.Inconsistent {
		l.logger.ErrorContext(ctx, "inconsistency: published but not recorded", attrs...)
		return nil
	}
	l.logger.WarnContext(ctx, "item abandoned", attrs...)
	return nil
}

func (l *Logger) PassCompleted(ctx context.Context, s *domain.PassSummary) error {
	l.logger.InfoContext(ctx, "pass completed",
		"pass_id", s.PassID,
		"duration", s.Duration,
		"discovered", s.Discovered,
		"skipped_duplicate", s.SkippedDuplicate,
		"published", s.Published,
		"failed", s.Failed,
		"inconsistent", s.Inconsistent,
		"source_errors", s.SourceErrors,
		"destinations", s.Destinations,
	)
	return nil
}

// Multi forwards every event to all sinks and joins their errors.
type Multi []Sink

func (m Multi) ItemAbandoned(ctx context.Context, event domain.ItemEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.ItemAbandoned(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PassCompleted(ctx context.Context, summary *domain.PassSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.PassCompleted(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
