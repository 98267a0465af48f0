package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lab-data-api/internal/application/tenancy"
	"lab-data-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

const (
	defaultMaxLen         = 100000
	defaultPublishTimeout = 50 * time.Millisecond
)

// Producer 消息生产者
type Producer struct {
	client  *redis.Client
	maxLen  int64
	timeout time.Duration
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{
		client:  client,
		maxLen:  maxLen,
		timeout: defaultPublishTimeout,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// RecordDenial 实现 tenancy.DenialRecorder
//
// 发布与请求生命周期解绑并限时，失败只记日志，不影响 403 响应。
func (p *Producer) RecordDenial(ctx context.Context, ev tenancy.DenialEvent) {
	msg, err := NewMessage(TypeTenantAccessDenied, ev.LabID.String(), ev.SubjectID, nil)
	if err != nil {
		return
	}
	msg.CreatedAt = ev.At
	msg.SetMetadata(MetaSource, "tenant_context")
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata(MetaTraceID, sc.TraceID().String())
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if _, err := p.Publish(pubCtx, StreamSecurityEvents, msg); err != nil {
		logger.Warn(ctx, "failed to publish security event", "type", msg.Type, "error", err.Error())
	}
}
