// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"lab-data-api/internal/interfaces/http/dto"
	apperrors "lab-data-api/pkg/errors"
	"lab-data-api/pkg/logger"
	"lab-data-api/pkg/utils"
)

const subjectIDKey = "subject_id"

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
}

// TokenParser 访问令牌校验
type TokenParser interface {
	ParseToken(token string) (*utils.Claims, error)
}

// Auth 认证中间件
//
// 未携带 Authorization 的请求作为匿名请求继续处理，是否允许匿名访问由后续环节决定；
// 携带了但无法校验的令牌返回 401。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return AuthWithParser(utils.NewJWTManager(cfg.Secret, cfg.Issuer))
}

// AuthWithParser 使用指定的令牌校验器创建认证中间件
func AuthWithParser(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			dto.Error(c, apperrors.ErrUnauthorized.WithMessage("invalid authorization format"))
			return
		}

		claims, err := parser.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, utils.ErrExpiredToken) {
				msg = "token expired"
			}
			dto.Error(c, apperrors.ErrUnauthorized.WithMessage(msg))
			return
		}

		// 注入主体信息
		c.Set(subjectIDKey, claims.Subject)
		ctx := logger.WithContext(c.Request.Context(), logger.SubjectIDKey, claims.Subject)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// SubjectID 返回已验证的主体 ID，匿名请求返回空字符串
func SubjectID(c *gin.Context) string {
	return c.GetString(subjectIDKey)
}
