package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/interfaces/http/dto"
	"lab-data-api/internal/interfaces/http/middleware"
	apperrors "lab-data-api/pkg/errors"
)

// SampleHandler 样本处理器
//
// 查询不按实验室过滤，可见范围由存储层按连接会话设置决定。
type SampleHandler struct {
	samples repository.SampleRepository
}

// NewSampleHandler 创建样本处理器
func NewSampleHandler(samples repository.SampleRepository) *SampleHandler {
	return &SampleHandler{samples: samples}
}

// List 列出当前上下文可见的样本
func (h *SampleHandler) List(c *gin.Context) {
	var req dto.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, "invalid pagination parameters")
		return
	}
	req.Normalize()

	samples, err := h.samples.List(c.Request.Context(), repository.NewPagination(req.Page, req.PageSize))
	if err != nil {
		respondError(c, "failed to list samples", err)
		return
	}

	dto.SuccessWithPage(c, dto.ToSampleResponses(samples), dto.NewPageMeta(req.Page, req.PageSize, len(samples)))
}

// Create 登记样本
func (h *SampleHandler) Create(c *gin.Context) {
	var req dto.CreateSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid sample payload")
		return
	}

	labID, ok := labFor(c)
	if !ok {
		dto.Error(c, apperrors.ErrLabContextRequired)
		return
	}

	sample := entity.NewSample(labID, strings.TrimSpace(req.Code), strings.TrimSpace(req.Matrix), middleware.SubjectID(c))
	if err := h.samples.Create(c.Request.Context(), sample); err != nil {
		respondError(c, "failed to create sample", err)
		return
	}

	dto.Created(c, dto.ToSampleResponse(sample))
}
