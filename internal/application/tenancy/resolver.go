// Package tenancy 解析请求的租户上下文
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"lab-data-api/internal/domain/repository"
	domaintenancy "lab-data-api/internal/domain/tenancy"
	"lab-data-api/pkg/metrics"
	"lab-data-api/pkg/tracer"
)

var (
	// ErrAccessDenied 调用方对请求的实验室没有有效成员关系
	//
	// 无成员关系、成员关系已撤销、实验室已删除或停用都返回同一个错误。
	ErrAccessDenied = errors.New("tenancy: access denied")

	// ErrLookupFailed 成员关系查询失败，必须按服务端错误处理
	ErrLookupFailed = errors.New("tenancy: membership lookup failed")
)

// DenialEvent 一次被拒绝的租户访问
type DenialEvent struct {
	SubjectID string
	LabID     uuid.UUID
	At        time.Time
}

// DenialRecorder 记录被拒绝的租户访问，实现不得阻塞过久，也不得影响响应
type DenialRecorder interface {
	RecordDenial(ctx context.Context, ev DenialEvent)
}

// Resolver 租户上下文解析器
type Resolver struct {
	memberships        repository.MembershipRepository
	globalAdminSubject string
	denials            DenialRecorder
}

// NewResolver 创建解析器，globalAdminSubject 为空表示不存在全局管理员
func NewResolver(memberships repository.MembershipRepository, globalAdminSubject string) *Resolver {
	return &Resolver{
		memberships:        memberships,
		globalAdminSubject: strings.TrimSpace(globalAdminSubject),
	}
}

// WithDenialRecorder 设置拒绝事件记录器
func (r *Resolver) WithDenialRecorder(rec DenialRecorder) *Resolver {
	r.denials = rec
	return r
}

// Resolve 根据已验证的主体与租户标识头解析上下文
//
// subjectID 为空表示未认证请求。headerValue 无法解析为实验室 ID 时视同未携带。
// 返回 ErrAccessDenied、ErrLookupFailed，或请求 context 被取消时的 ctx.Err()。
func (r *Resolver) Resolve(ctx context.Context, subjectID, headerValue string) (domaintenancy.Context, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		metrics.TenancyResolutions.WithLabelValues("unscoped").Inc()
		return domaintenancy.Unscoped{}, nil
	}

	labID, hasLab := ParseLabID(headerValue)

	if r.globalAdminSubject != "" && subjectID == r.globalAdminSubject {
		metrics.TenancyResolutions.WithLabelValues("global_admin").Inc()
		return domaintenancy.NewGlobalAdmin(labID), nil
	}

	if !hasLab {
		metrics.TenancyResolutions.WithLabelValues("unscoped").Inc()
		return domaintenancy.Unscoped{}, nil
	}

	lookupCtx, span := tracer.Start(ctx, "tenancy.MembershipLookup")
	span.SetAttributes(attribute.String("lab.id", labID.String()))
	start := time.Now()
	m, err := r.memberships.Lookup(lookupCtx, subjectID, labID)
	metrics.MembershipLookupDuration.WithLabelValues("resolver").Observe(time.Since(start).Seconds())
	tracer.RecordError(span, err)
	span.End()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.TenancyResolutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if m == nil || m.LabID != labID {
		metrics.TenancyResolutions.WithLabelValues("denied").Inc()
		if r.denials != nil {
			r.denials.RecordDenial(ctx, DenialEvent{SubjectID: subjectID, LabID: labID, At: time.Now().UTC()})
		}
		return nil, ErrAccessDenied
	}

	scoped, err := domaintenancy.NewScoped(m)
	if err != nil {
		metrics.TenancyResolutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	metrics.TenancyResolutions.WithLabelValues("scoped").Inc()
	return scoped, nil
}

// ParseLabID 解析租户标识头，空值、非法值与全零 UUID 均视为未携带
func ParseLabID(v string) (uuid.UUID, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
