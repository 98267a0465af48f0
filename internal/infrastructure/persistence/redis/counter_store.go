package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// incrWithExpiry 自增与过期设置在同一个脚本内执行
//
// 计数器首次创建时设置过期时间；若发现计数器没有过期时间（-1），同样补设，
// 保证任何存在的计数键都带有过期时间。
var incrWithExpiry = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// CounterStore 基于 Redis 的固定窗口计数器
type CounterStore struct {
	client *Client
}

// NewCounterStore 创建计数器
func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

// AtomicIncrementWithExpiry 实现 repository.CounterStore
func (s *CounterStore) AtomicIncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Increment",
		trace.WithAttributes(
			attribute.String("ratelimit.key", key),
			attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
		))
	defer span.End()

	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return 0, 0, fmt.Errorf("invalid window %s", window)
	}

	vals, err := incrWithExpiry.Run(ctx, s.client.rdb, []string{key}, windowMs).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("increment %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("increment %s: unexpected reply length %d", key, len(vals))
	}

	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	span.SetAttributes(attribute.Int64("ratelimit.count", count))
	return count, ttl, nil
}
