package middleware

import (
	"github.com/gin-gonic/gin"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/internal/interfaces/http/dto"
	apperrors "lab-data-api/pkg/errors"
)

// RequireLabScope 要求请求带有实验室上下文（Scoped 或 GlobalAdmin）
func RequireLabScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if TenantFromGin(c).Kind() == tenancy.KindUnscoped {
			dto.Error(c, apperrors.ErrLabContextRequired)
			return
		}
		c.Next()
	}
}

// RequireRole 角色检查中间件
//
// Scoped 上下文要求成员角色不低于 min，GlobalAdmin 总是通过，Unscoped 按缺少实验室上下文拒绝。
func RequireRole(min entity.MembershipRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch tc := TenantFromGin(c).(type) {
		case tenancy.GlobalAdmin:
			c.Next()
		case tenancy.Scoped:
			if !tc.Role().AtLeast(min) {
				dto.Error(c, apperrors.ErrInsufficientRole)
				return
			}
			c.Next()
		default:
			dto.Error(c, apperrors.ErrLabContextRequired)
		}
	}
}
