package core

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const throttleKeyPrefix = "auth:attempts:"

// recordFailureScript bumps the failure counter and starts the window on the
// first failure so the counter expires on its own.
var recordFailureScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// LoginThrottle counts failed login attempts per username+client key in a
// fixed redis window and blocks further attempts once the limit is reached.
// It fails open: when redis is unreachable logins proceed, with a log line
// for operators. A nil throttle disables throttling entirely.
type LoginThrottle struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLoginThrottle(client *redis.Client, limit int, window time.Duration) *LoginThrottle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginThrottle{client: client, limit: limit, window: window}
}

// Blocked reports whether the key has reached the failure limit in the
// current window.
func (t *LoginThrottle) Blocked(ctx context.Context, key string) bool {
	if t == nil || t.client == nil {
		return false
	}
	n, err := t.client.Get(ctx, throttleKeyPrefix+key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("login throttle read failed, allowing attempt: %v", err)
		}
		return false
	}
	return n >= int64(t.limit)
}

// RecordFailure bumps the failure counter for the key.
func (t *LoginThrottle) RecordFailure(ctx context.Context, key string) {
	if t == nil || t.client == nil {
		return
	}
	if err := recordFailureScript.Run(ctx, t.client, []string{throttleKeyPrefix + key}, t.window.Milliseconds()).Err(); err != nil {
		log.Printf("login throttle record failed: %v", err)
	}
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, key string) {
	if t == nil || t.client == nil {
		return
	}
	if err := t.client.Del(ctx, throttleKeyPrefix+key).Err(); err != nil {
		log.Printf("login throttle reset failed: %v", err)
	}
}
