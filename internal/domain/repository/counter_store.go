package repository

import (
	"context"
	"time"
)

// CounterStore 远端共享的原子计数器
type CounterStore interface {
	// AtomicIncrementWithExpiry 原子地自增计数器，并在首次创建时设置过期时间。
	// 返回自增后的计数与剩余存活时间；自增与过期设置必须是一个不可分割的服务端操作。
	AtomicIncrementWithExpiry(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}
