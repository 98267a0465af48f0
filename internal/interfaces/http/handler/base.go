// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/internal/interfaces/http/dto"
	"lab-data-api/internal/interfaces/http/middleware"
	apperrors "lab-data-api/pkg/errors"
	"lab-data-api/pkg/logger"
)

// labFor 返回写入操作归属的实验室
//
// Scoped 使用成员关系所在实验室；GlobalAdmin 必须通过请求头指定目标实验室。
func labFor(c *gin.Context) (uuid.UUID, bool) {
	switch tc := middleware.TenantFromGin(c).(type) {
	case tenancy.Scoped:
		return tc.LabID(), true
	case tenancy.GlobalAdmin:
		return tc.TargetLab()
	}
	return uuid.Nil, false
}

// respondError 记录并返回错误响应
func respondError(c *gin.Context, msg string, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), msg, err)
	}
	dto.Error(c, appErr)
}
