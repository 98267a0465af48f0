package handler

import (
	"github.com/gin-gonic/gin"

	"lab-data-api/internal/interfaces/http/dto"
	"lab-data-api/pkg/logger"
)

// AuthHandler 账号相关处理器
type AuthHandler struct{}

// NewAuthHandler 创建账号处理器
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Recover 受理账号找回请求
//
// 无论邮箱是否存在都返回 202，避免泄露账号是否存在；邮件投递由认证服务完成。
func (h *AuthHandler) Recover(c *gin.Context) {
	var req dto.AccountRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "a valid email is required")
		return
	}

	logger.Info(c.Request.Context(), "account recovery requested")
	dto.Accepted(c)
}
