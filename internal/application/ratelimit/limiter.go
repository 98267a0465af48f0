package ratelimit

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lab-data-api/internal/domain/repository"
	"lab-data-api/pkg/metrics"
	"lab-data-api/pkg/tracer"
)

const (
	defaultKeyPrefix    = "ratelimit"
	defaultStoreTimeout = 100 * time.Millisecond
)

// Decision 单次限流判定结果
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset 当前窗口结束的时间点
	Reset time.Time
	// RetryAfter 仅在拒绝时有意义，至少 1 秒
	RetryAfter time.Duration
	Key        string
	Policy     string
	// Strategy 回退后实际使用的键类型：ip/user/field
	Strategy string
	// Degraded 计数存储不可用，按放行处理
	Degraded bool
}

// Options 限流器选项
type Options struct {
	KeyPrefix    string
	StoreTimeout time.Duration
}

// Limiter 固定窗口限流器
//
// 计数保存在共享的远端计数存储中，多个实例共享同一配额。
// 计数存储出错或超时时放行请求，并记录一条包含限流键的事件。
type Limiter struct {
	registry     *Registry
	store        repository.CounterStore
	events       EventRecorder
	prefix       string
	storeTimeout time.Duration
	now          func() time.Time
}

// NewLimiter 创建限流器
func NewLimiter(registry *Registry, store repository.CounterStore, events EventRecorder, opts Options) *Limiter {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if events == nil {
		events = NopRecorder{}
	}
	return &Limiter{
		registry:     registry,
		store:        store,
		events:       events,
		prefix:       opts.KeyPrefix,
		storeTimeout: opts.StoreTimeout,
		now:          time.Now,
	}
}

// Check 对请求计数并给出判定
func (l *Limiter) Check(ctx context.Context, d Descriptor) Decision {
	policy := l.registry.Match(d.Method, d.Route)
	kind, id := deriveIdentifier(policy, d)
	key := buildKey(l.prefix, policy, kind, id)

	ctx, span := tracer.Start(ctx, "ratelimit.Check", trace.WithAttributes(
		attribute.String("ratelimit.policy", policy.Name),
		attribute.String("ratelimit.strategy", kind),
	))
	defer span.End()

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	start := time.Now()
	count, ttl, err := l.store.AtomicIncrementWithExpiry(storeCtx, key, policy.Window)
	cancel()
	metrics.RateLimitStoreDuration.Observe(time.Since(start).Seconds())

	now := l.now()
	if err != nil {
		tracer.RecordError(span, err)
		span.SetAttributes(attribute.Bool("ratelimit.fail_open", true))
		l.events.RecordFailOpen(ctx, FailOpenEvent{
			Key:      key,
			Policy:   policy.Name,
			Strategy: kind,
			Err:      err,
			At:       now,
		})
		metrics.RateLimitDecisions.WithLabelValues(kind, "fail_open").Inc()
		return Decision{
			Allowed:   true,
			Limit:     policy.Threshold,
			Remaining: policy.Threshold,
			Reset:     now.Add(policy.Window),
			Key:       key,
			Policy:    policy.Name,
			Strategy:  kind,
			Degraded:  true,
		}
	}

	if ttl <= 0 || ttl > policy.Window {
		ttl = policy.Window
	}

	dec := Decision{
		Allowed:   count <= int64(policy.Threshold),
		Limit:     policy.Threshold,
		Remaining: remaining(policy.Threshold, count),
		Reset:     now.Add(ttl),
		Key:       key,
		Policy:    policy.Name,
		Strategy:  kind,
	}
	span.SetAttributes(attribute.Int64("ratelimit.count", count), attribute.Bool("ratelimit.allowed", dec.Allowed))
	if !dec.Allowed {
		dec.RetryAfter = retryAfter(ttl)
		metrics.RateLimitDecisions.WithLabelValues(kind, "rejected").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(kind, "allowed").Inc()
	}
	return dec
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}

// retryAfter 向上取整到秒，至少 1 秒
func retryAfter(ttl time.Duration) time.Duration {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
