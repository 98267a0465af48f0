package entity

import (
	"time"

	"github.com/google/uuid"
)

// LabMembership 主体与实验室的授权绑定，(SubjectID, LabID) 唯一
type LabMembership struct {
	SubjectID string         `json:"subject_id"`
	LabID     uuid.UUID      `json:"lab_id"`
	Role      MembershipRole `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}
