package dto

import (
	"time"

	"lab-data-api/internal/domain/entity"
)

// CreateSampleRequest 样本登记请求
type CreateSampleRequest struct {
	Code   string `json:"code" binding:"required,max=64"`
	Matrix string `json:"matrix" binding:"max=64"`
}

// SampleResponse 样本响应
type SampleResponse struct {
	ID         string `json:"id"`
	LabID      string `json:"lab_id"`
	Code       string `json:"code"`
	Matrix     string `json:"matrix"`
	Status     string `json:"status"`
	ReceivedBy string `json:"received_by"`
	ReceivedAt string `json:"received_at"`
}

// ToSampleResponse 转换样本实体
func ToSampleResponse(s *entity.Sample) *SampleResponse {
	if s == nil {
		return nil
	}
	return &SampleResponse{
		ID:         s.ID.String(),
		LabID:      s.LabID.String(),
		Code:       s.Code,
		Matrix:     s.Matrix,
		Status:     string(s.Status),
		ReceivedBy: s.ReceivedBy,
		ReceivedAt: s.ReceivedAt.Format(time.RFC3339),
	}
}

// ToSampleResponses 批量转换
func ToSampleResponses(samples []*entity.Sample) []*SampleResponse {
	out := make([]*SampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, ToSampleResponse(s))
	}
	return out
}
