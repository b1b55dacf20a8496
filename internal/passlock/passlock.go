// Package passlock keeps two pipeline passes from running at once.
package passlock

import (
	"context"
	"errors"
	"sync"
)

var ErrHeld = errors.New("pass lock is held")

type Locker interface {
	// Acquire takes the lock without waiting. It returns ErrHeld when
	// another pass owns it.
	Acquire(ctx context.Context) (release func(), err error)
}

// Local guards passes within one process.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}
