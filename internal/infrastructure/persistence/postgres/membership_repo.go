package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lab-data-api/internal/domain/entity"
)

// membershipLookupSQL 撤销的成员关系、已删除或非 active 的实验室都查不到行
const membershipLookupSQL = `SELECT m.subject_id, m.lab_id, m.role, m.created_at
FROM lab_memberships AS m
JOIN labs AS l ON l.id = m.lab_id
WHERE m.subject_id = ? AND m.lab_id = ?
  AND m.deleted_at IS NULL
  AND l.deleted_at IS NULL
  AND l.status = ?
LIMIT 1`

type membershipRow struct {
	SubjectID string
	LabID     uuid.UUID
	Role      string
	CreatedAt time.Time
}

// MembershipRepository 成员关系仓储实现
type MembershipRepository struct {
	client *Client
}

// NewMembershipRepository 创建成员关系仓储
func NewMembershipRepository(client *Client) *MembershipRepository {
	return &MembershipRepository{client: client}
}

// Lookup 实现 repository.MembershipRepository
func (r *MembershipRepository) Lookup(ctx context.Context, subjectID string, labID uuid.UUID) (*entity.LabMembership, error) {
	ctx, span := tracer.Start(ctx, "postgres.MembershipRepository.Lookup")
	defer span.End()

	var rows []membershipRow
	err := r.client.db.WithContext(ctx).
		Raw(membershipLookupSQL, subjectID, labID, string(entity.LabStatusActive)).
		Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lookup membership: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	role, err := entity.ParseMembershipRole(row.Role)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("membership %s/%s: %w", row.LabID, row.SubjectID, err)
	}

	return &entity.LabMembership{
		SubjectID: row.SubjectID,
		LabID:     row.LabID,
		Role:      role,
		CreatedAt: row.CreatedAt,
	}, nil
}
