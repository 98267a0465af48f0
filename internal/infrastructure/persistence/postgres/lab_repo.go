package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lab-data-api/internal/domain/entity"
)

// LabRepository 实验室仓储实现
type LabRepository struct {
	client *Client
}

// NewLabRepository 创建实验室仓储
func NewLabRepository(client *Client) *LabRepository {
	return &LabRepository{client: client}
}

// GetByID 根据 ID 获取未删除的实验室
func (r *LabRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Lab, error) {
	ctx, span := tracer.Start(ctx, "postgres.LabRepository.GetByID")
	defer span.End()

	var lab entity.Lab
	err := r.client.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&lab).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}
	return &lab, nil
}
