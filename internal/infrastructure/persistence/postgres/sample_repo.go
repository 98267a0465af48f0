package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/repository"
)

// SampleRepository 样本仓储实现
//
// 查询不带租户过滤条件，行可见性由 samples 表的行级安全策略决定。
type SampleRepository struct {
	store *Store
}

// NewSampleRepository 创建样本仓储
func NewSampleRepository(store *Store) *SampleRepository {
	return &SampleRepository{store: store}
}

// Create 创建样本
func (r *SampleRepository) Create(ctx context.Context, s *entity.Sample) error {
	ctx, span := tracer.Start(ctx, "postgres.SampleRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.store.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO samples (id, lab_id, code, matrix, status, received_by, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.LabID, s.Code, s.Matrix, string(s.Status), s.ReceivedBy, s.ReceivedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create sample: %w", err)
	}
	return nil
}

// List 列出当前会话可见的样本
func (r *SampleRepository) List(ctx context.Context, pagination repository.Pagination) ([]*entity.Sample, error) {
	ctx, span := tracer.Start(ctx, "postgres.SampleRepository.List")
	defer span.End()

	q := getQuerier(ctx, r.store.pool)
	rows, err := q.Query(ctx,
		`SELECT id, lab_id, code, matrix, status, received_by, received_at
		 FROM samples
		 ORDER BY received_at DESC, id
		 LIMIT $1 OFFSET $2`,
		pagination.Limit(), pagination.Offset(),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}

	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Sample, error) {
		var s entity.Sample
		var status string
		if err := row.Scan(&s.ID, &s.LabID, &s.Code, &s.Matrix, &status, &s.ReceivedBy, &s.ReceivedAt); err != nil {
			return nil, err
		}
		s.Status = entity.SampleStatus(status)
		return &s, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan samples: %w", err)
	}
	return samples, nil
}
