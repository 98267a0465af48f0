// Package tenancy 定义请求级租户上下文
//
// 请求租户上下文是一个封闭的标签变体：Scoped、GlobalAdmin、Unscoped 三者之一。
// Scoped 只能由一条已验证的成员关系构造，不存在凭空构造 Scoped 的路径。
package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"lab-data-api/internal/domain/entity"
)

// Kind 上下文种类
type Kind string

const (
	KindUnscoped    Kind = "unscoped"
	KindScoped      Kind = "scoped"
	KindGlobalAdmin Kind = "global_admin"
)

// Context 请求租户上下文
type Context interface {
	Kind() Kind
	sealed()
}

// Scoped 已验证成员关系的租户上下文
type Scoped struct {
	labID uuid.UUID
	role  entity.MembershipRole
}

// NewScoped 从已验证的成员关系构造 Scoped 上下文
func NewScoped(m *entity.LabMembership) (Scoped, error) {
	if m == nil {
		return Scoped{}, errors.New("tenancy: scoped context requires a membership")
	}
	if m.LabID == uuid.Nil {
		return Scoped{}, errors.New("tenancy: membership has no lab id")
	}
	if !m.Role.Valid() {
		return Scoped{}, errors.New("tenancy: membership has an unknown role")
	}
	return Scoped{labID: m.LabID, role: m.Role}, nil
}

// Kind 实现 Context
func (Scoped) Kind() Kind { return KindScoped }
func (Scoped) sealed()    {}

// LabID 返回实验室 ID
func (s Scoped) LabID() uuid.UUID { return s.labID }

// Role 返回成员角色
func (s Scoped) Role() entity.MembershipRole { return s.role }

// GlobalAdmin 全局管理员上下文，不受成员关系与存储隔离约束
//
// 若请求带有实验室标识，则记录为目标实验室，仅用于下游展示与存储会话的 current-lab 设置。
type GlobalAdmin struct {
	targetLab uuid.UUID
}

// NewGlobalAdmin 构造全局管理员上下文，targetLab 可为 uuid.Nil
func NewGlobalAdmin(targetLab uuid.UUID) GlobalAdmin {
	return GlobalAdmin{targetLab: targetLab}
}

// Kind 实现 Context
func (GlobalAdmin) Kind() Kind { return KindGlobalAdmin }
func (GlobalAdmin) sealed()    {}

// TargetLab 返回请求的目标实验室
func (g GlobalAdmin) TargetLab() (uuid.UUID, bool) {
	return g.targetLab, g.targetLab != uuid.Nil
}

// Unscoped 未请求任何租户（或未认证）的上下文
type Unscoped struct{}

// Kind 实现 Context
func (Unscoped) Kind() Kind { return KindUnscoped }
func (Unscoped) sealed()    {}

// SessionSettings 传播到存储连接的两个会话设置
type SessionSettings struct {
	IsGlobalAdmin bool
	CurrentLabID  string
}

// SettingsFor 推导存储会话设置；Unscoped 返回 ok=false，表示不设置任何值
func SettingsFor(tc Context) (SessionSettings, bool) {
	switch c := tc.(type) {
	case Scoped:
		return SessionSettings{CurrentLabID: c.labID.String()}, true
	case GlobalAdmin:
		s := SessionSettings{IsGlobalAdmin: true}
		if lab, ok := c.TargetLab(); ok {
			s.CurrentLabID = lab.String()
		}
		return s, true
	default:
		return SessionSettings{}, false
	}
}

type contextKey struct{}

// WithContext 将租户上下文附加到请求 context
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext 读取附加的租户上下文，未附加时 ok=false
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(Context)
	return tc, ok && tc != nil
}

// MustFromContext 读取租户上下文，未附加时视为 Unscoped
func MustFromContext(ctx context.Context) Context {
	if tc, ok := FromContext(ctx); ok {
		return tc
	}
	return Unscoped{}
}
