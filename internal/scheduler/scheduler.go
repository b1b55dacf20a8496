// Package scheduler repeats pipeline passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"video_reposter/internal/domain"
	"video_reposter/internal/pipeline"
)

type Passer interface {
	RunPass(ctx context.Context) (*domain.PassSummary, error)
}

type Scheduler struct {
	passer   Passer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler returns a scheduler that bounds every pass by timeout. A zero
// timeout lets a pass run until the parent context ends.
func NewScheduler(passer Passer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		passer:   passer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start runs a pass immediately and then once per interval until ctx ends.
// Ticks that arrive while a pass is still running are dropped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	passCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.passer.RunPass(passCtx)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrPassInProgress):
		s.logger.Warn("previous pass still running, skipping tick")
	case ctx.Err() != nil:
	default:
		s.logger.Error("pass failed", "error", err)
	}
}
