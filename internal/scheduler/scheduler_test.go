package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video_reposter/internal/domain"
	"video_reposter/internal/pipeline"
)

type passerFunc func(ctx context.Context) (*domain.PassSummary, error)

func (f passerFunc) RunPass(ctx context.Context) (*domain.PassSummary, error) {
	return f(ctx)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passer := passerFunc(func(ctx context.Context) (*domain.PassSummary, error) {
		if calls.Add(1) == 3 {
			cancel()
		}
		return domain.NewPassSummary("p", time.Now()), nil
	})

	err := NewScheduler(passer, 5*time.Millisecond, 0, discard).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestScheduler_PassErrorsDoNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passer := passerFunc(func(ctx context.Context) (*domain.PassSummary, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("ledger unreadable")
		case 2:
			return nil, pipeline.ErrPassInProgress
		default:
			cancel()
			return nil, nil
		}
	})

	err := NewScheduler(passer, time.Millisecond, 0, discard).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestScheduler_PassTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deadline atomic.Bool
	passer := passerFunc(func(ctx context.Context) (*domain.PassSummary, error) {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		cancel()
		return nil, nil
	})

	err := NewScheduler(passer, time.Hour, time.Minute, discard).Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, deadline.Load())
}
