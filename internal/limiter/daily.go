// Package limiter enforces a model budget shared by every service instance.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned once either daily counter reaches its limit.
var ErrBudgetExceeded = errors.New("daily model budget exceeded")

const (
	dayLayout = "2006-01-02"
	// Counters outlive their day so a late Record cannot resurrect a key without expiry.
	keyTTL    = 48 * time.Hour
)

// DailyBudget counts model requests and tokens per UTC day in Redis.
type DailyBudget struct {
	client       redis.Cmdable
	prefix       string
	requestLimit int64
	tokenLimit   int64
	now          func() time.Time
}

// Usage is a day's counters.
type Usage struct {
	Day      string `json:"day"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

// NewDailyBudget builds a budget. A nil client or two zero limits disable it.
func NewDailyBudget(client redis.Cmdable, prefix string, requestLimit, tokenLimit int64) *DailyBudget {
	if prefix == "" {
		prefix = "triage:budget"
	}
	return &DailyBudget{
		client:       client,
		prefix:       prefix,
		requestLimit: requestLimit,
		tokenLimit:   tokenLimit,
		now:          time.Now,
	}
}

// Enabled reports whether the budget is enforced.
func (b *DailyBudget) Enabled() bool {
	return b != nil && b.client != nil && (b.requestLimit > 0 || b.tokenLimit > 0)
}

func (b *DailyBudget) keys() (day, requests, tokens string) {
	day = b.now().UTC().Format(dayLayout)
	return day, fmt.Sprintf("%s:%s:requests", b.prefix, day), fmt.Sprintf("%s:%s:tokens", b.prefix, day)
}

// Allow rejects with ErrBudgetExceeded when either counter is at or over its limit.
func (b *DailyBudget) Allow(ctx context.Context) error {
	if !b.Enabled() {
		return nil
	}
	usage, err := b.Current(ctx)
	if err != nil {
		return err
	}
	if b.requestLimit > 0 && usage.Requests >= b.requestLimit {
		return fmt.Errorf("%w: %d of %d requests used on %s", ErrBudgetExceeded, usage.Requests, b.requestLimit, usage.Day)
	}
	if b.tokenLimit > 0 && usage.Tokens >= b.tokenLimit {
		return fmt.Errorf("%w: %d of %d tokens used on %s", ErrBudgetExceeded, usage.Tokens, b.tokenLimit, usage.Day)
	}
	return nil
}

// Record adds a run's usage to today's counters.
func (b *DailyBudget) Record(ctx context.Context, requests, tokens int) error {
	if !b.Enabled() || (requests == 0 && tokens == 0) {
		return nil
	}
	_, reqKey, tokKey := b.keys()
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, reqKey, int64(requests))
		pipe.Expire(ctx, reqKey, keyTTL)
		pipe.IncrBy(ctx, tokKey, int64(tokens))
		pipe.Expire(ctx, tokKey, keyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record budget usage: %w", err)
	}
	return nil
}

// Current reads today's counters.
func (b *DailyBudget) Current(ctx context.Context) (Usage, error) {
	if b == nil || b.client == nil {
		return Usage{Day: time.Now().UTC().Format(dayLayout)}, nil
	}
	day, reqKey, tokKey := b.keys()
	usage := Usage{Day: day}
	vals, err := b.client.MGet(ctx, reqKey, tokKey).Result()
	if err != nil {
		return usage, fmt.Errorf("read budget usage: %w", err)
	}
	usage.Requests = parseCounter(vals, 0)
	usage.Tokens = parseCounter(vals, 1)
	return usage, nil
}

func parseCounter(vals []interface{}, i int) int64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
