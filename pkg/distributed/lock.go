package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when this holder's token is still
// in it, so a lock that expired and was re-acquired elsewhere is never
// released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a redis-backed mutual exclusion key. The ban wave uses one to
// keep multiple bot instances from applying the same wave; the same
// Lock is acquired and released once per wave.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	mu        sync.Mutex
	stopRenew chan struct{}
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		token:  randomToken(),
		ttl:    ttl,
	}
}

func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// TryLock attempts a non-blocking acquisition. While held, the key is
// refreshed at half TTL so a slow holder does not lose it mid-run.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.stopRenew = make(chan struct{})
	go l.renew(l.stopRenew)
	l.mu.Unlock()
	return true, nil
}

// Unlock releases the lock if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return fmt.Errorf("lock %s not held by this instance", l.key)
	}
	return nil
}

func (l *Lock) renew(stop chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			held, err := l.client.Get(ctx, l.key).Result()
			if err == nil && held == l.token {
				l.client.Expire(ctx, l.key, l.ttl)
			}
			cancel()
			// The key lapsed or another holder took it; stop renewing.
			if err != nil || held != l.token {
				return
			}
		case <-stop:
			return
		}
	}
}
