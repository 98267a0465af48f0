package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"lab-data-api/pkg/logger"
	"lab-data-api/pkg/metrics"
)

// FailOpenEvent 计数存储不可用导致放行的事件
type FailOpenEvent struct {
	Key      string
	Policy   string
	Strategy string
	Err      error
	At       time.Time
}

// EventRecorder 记录限流降级事件
type EventRecorder interface {
	RecordFailOpen(ctx context.Context, ev FailOpenEvent)
}

// NopRecorder 丢弃所有事件
type NopRecorder struct{}

// RecordFailOpen 实现 EventRecorder
func (NopRecorder) RecordFailOpen(context.Context, FailOpenEvent) {}

// LogRecorder 将降级事件写入日志与指标
//
// 计数存储整体不可用时每个请求都会触发事件，日志按速率采样，指标不采样。
type LogRecorder struct {
	sampler *rate.Limiter
}

// NewLogRecorder 创建日志事件记录器，perSecond <= 0 时不限制日志速率
func NewLogRecorder(perSecond float64, burst int) *LogRecorder {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &LogRecorder{sampler: lim}
}

// RecordFailOpen 实现 EventRecorder
func (r *LogRecorder) RecordFailOpen(ctx context.Context, ev FailOpenEvent) {
	metrics.RateLimitFailOpen.Inc()
	if !r.sampler.Allow() {
		return
	}
	logger.Warn(ctx, "rate limit store unavailable, request allowed",
		"key", ev.Key,
		"policy", ev.Policy,
		"strategy", ev.Strategy,
		"error", ev.Err,
	)
}
