package repository

import (
	"context"

	"github.com/google/uuid"

	"lab-data-api/internal/domain/entity"
)

// MembershipRepository 成员关系点查询
type MembershipRepository interface {
	// Lookup 查询 (subject, lab) 的成员关系。
	// 无记录、成员关系已撤销、实验室已删除或非活跃时返回 (nil, nil)，调用方不得区分这些情况。
	Lookup(ctx context.Context, subjectID string, labID uuid.UUID) (*entity.LabMembership, error)
}

// LabRepository 实验室查询
type LabRepository interface {
	// GetByID 根据 ID 获取实验室，不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Lab, error)
}
