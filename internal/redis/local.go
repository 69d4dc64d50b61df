package redis

import (
	"context"
	"sync"
	"time"
)

// LocalLock is an in-process keyed mutex for single-instance deployments and tests.
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLock(wait time.Duration) *LocalLock {
	return &LocalLock{slots: make(map[string]*slot), wait: wait}
}

func (l *LocalLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[sessionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[sessionID] = s
	}
	s.refs++
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.drop(sessionID, s)
			})
		}, nil
	case <-ctx.Done():
		l.drop(sessionID, s)
		return nil, ErrLockTimeout
	}
}

func (l *LocalLock) drop(sessionID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, sessionID)
	}
}
