package repository

import (
	"context"

	"lab-data-api/internal/domain/tenancy"
)

// SessionInspector 读取存储连接上当前生效的租户会话设置
type SessionInspector interface {
	// CurrentSettings 在一条新取出的连接上读取会话设置（诊断用）
	CurrentSettings(ctx context.Context) (tenancy.SessionSettings, error)
}
