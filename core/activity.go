package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activityKeyPrefix    = "auth:activity:"
	activityRetention    = 30 * 24 * time.Hour
	activityDateLayout   = "2006-01-02"
	counterLoginSuccess  = "login_success"
	counterLoginFailure  = "login_failure"
	counterTokenRejected = "token_rejected"
)

// DailyActivity reports auth event counts for one day.
type DailyActivity struct {
	Date          string `json:"date"`
	LoginSuccess  int64  `json:"login_success"`
	LoginFailure  int64  `json:"login_failure"`
	TokenRejected int64  `json:"token_rejected"`
}

// ActivityRecorder keeps daily auth counters in redis so operators can see
// login and token-rejection volume. Recording is best effort: failures are
// logged, never surfaced to the request. A nil recorder is a no-op.
type ActivityRecorder struct {
	client *redis.Client
}

func NewActivityRecorder(client *redis.Client) *ActivityRecorder {
	return &ActivityRecorder{client: client}
}

func (a *ActivityRecorder) RecordLoginSuccess(ctx context.Context) {
	a.record(ctx, counterLoginSuccess)
}

func (a *ActivityRecorder) RecordLoginFailure(ctx context.Context) {
	a.record(ctx, counterLoginFailure)
}

func (a *ActivityRecorder) RecordTokenRejected(ctx context.Context) {
	a.record(ctx, counterTokenRejected)
}

func (a *ActivityRecorder) record(ctx context.Context, counter string) {
	if a == nil || a.client == nil {
		return
	}
	key := activityKey(time.Now(), counter)
	pipe := a.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, activityRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("activity record %s failed: %v", counter, err)
	}
}

// Overview returns counters for the last days (today first). Missing keys
// read as zero.
func (a *ActivityRecorder) Overview(ctx context.Context, days int) ([]DailyActivity, error) {
	if a == nil || a.client == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 7
	}
	out := make([]DailyActivity, 0, days)
	now := time.Now()
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i)
		entry := DailyActivity{Date: day.Format(activityDateLayout)}
		var err error
		if entry.LoginSuccess, err = a.read(ctx, day, counterLoginSuccess); err != nil {
			return nil, err
		}
		if entry.LoginFailure, err = a.read(ctx, day, counterLoginFailure); err != nil {
			return nil, err
		}
		if entry.TokenRejected, err = a.read(ctx, day, counterTokenRejected); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *ActivityRecorder) read(ctx context.Context, day time.Time, counter string) (int64, error) {
	n, err := a.client.Get(ctx, activityKey(day, counter)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("read activity counter %s: %w", counter, err)
	}
	return n, nil
}

func activityKey(day time.Time, counter string) string {
	return activityKeyPrefix + day.Format(activityDateLayout) + ":" + counter
}
