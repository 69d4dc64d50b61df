package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
)

var ErrLockTimeout = errors.New("timed out waiting for session lock")

// Locker serializes work on one class session.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

const retryInterval = 50 * time.Millisecond

// Only the holder of the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type SessionLock struct {
	Client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    *logger.Logger
}

// NewSessionLock returns a distributed lock. ttl bounds how long a crashed
// holder can block a session; wait bounds how long Acquire retries.
func NewSessionLock(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *SessionLock {
	return &SessionLock{Client: client, ttl: ttl, wait: wait, log: log}
}

func lockKey(sessionID string) string {
	return "session_lock:" + sessionID
}

func (l *SessionLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKey(sessionID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			l.log.LogBooking("LOCK", sessionID, "Session lock acquired")
			return func() { l.release(key, token, sessionID) }, nil
		}

		select {
		case <-ctx.Done():
			l.log.Warn("LOCK", fmt.Sprintf("Gave up waiting for session %s after %s", sessionID, l.wait))
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *SessionLock) release(key, token, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		// The key still expires after ttl.
		l.log.Error("LOCK", fmt.Sprintf("Failed to release session lock %s: %v", sessionID, err))
		return
	}
	l.log.LogBooking("UNLOCK", sessionID, "Session lock released")
}
