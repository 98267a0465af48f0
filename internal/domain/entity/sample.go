package entity

import (
	"time"

	"github.com/google/uuid"
)

// SampleStatus 样本状态
type SampleStatus string

const (
	SampleStatusReceived  SampleStatus = "received"
	SampleStatusInTesting SampleStatus = "in_testing"
	SampleStatusReported  SampleStatus = "reported"
)

// Sample 样本实体，行可见性由存储层的行级安全策略按 LabID 控制
type Sample struct {
	ID         uuid.UUID    `json:"id"`
	LabID      uuid.UUID    `json:"lab_id"`
	Code       string       `json:"code"`
	Matrix     string       `json:"matrix"`
	Status     SampleStatus `json:"status"`
	ReceivedBy string       `json:"received_by"`
	ReceivedAt time.Time    `json:"received_at"`
}

// NewSample 创建新样本
func NewSample(labID uuid.UUID, code, matrix, receivedBy string) *Sample {
	return &Sample{
		ID:         uuid.New(),
		LabID:      labID,
		Code:       code,
		Matrix:     matrix,
		Status:     SampleStatusReceived,
		ReceivedBy: receivedBy,
		ReceivedAt: time.Now().UTC(),
	}
}
