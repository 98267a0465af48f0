package repository

import (
	"context"

	"lab-data-api/internal/domain/entity"
)

// SampleRepository 样本仓储
//
// 实现不按租户过滤查询，行可见性完全依赖存储层按连接会话设置执行的行级安全策略。
type SampleRepository interface {
	// Create 创建样本
	Create(ctx context.Context, sample *entity.Sample) error

	// List 列出当前会话可见的样本
	List(ctx context.Context, pagination Pagination) ([]*entity.Sample, error)
}
