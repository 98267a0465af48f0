package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apptenancy "lab-data-api/internal/application/tenancy"
	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/internal/interfaces/http/dto"
	apperrors "lab-data-api/pkg/errors"
	"lab-data-api/pkg/logger"
)

// DefaultLabHeader 默认的租户标识请求头
const DefaultLabHeader = "X-Lab-Id"

// TenantResolver 租户上下文解析
type TenantResolver interface {
	Resolve(ctx context.Context, subjectID, headerValue string) (tenancy.Context, error)
}

// TenantConfig 租户中间件配置
type TenantConfig struct {
	// HeaderName 租户标识请求头
	HeaderName string
}

// TenantContext 解析请求的租户上下文并附加到 request context
//
// 附加后，业务连接池每次取出连接都会按该上下文推送会话设置。
// 成员关系校验失败返回 403，查询失败返回 500；客户端已断开时直接终止，不写响应。
func TenantContext(cfg TenantConfig, resolver TenantResolver) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultLabHeader
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		tc, err := resolver.Resolve(ctx, SubjectID(c), c.GetHeader(cfg.HeaderName))
		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.Abort()
			case errors.Is(err, apptenancy.ErrAccessDenied):
				logger.Info(ctx, "lab access denied", "lab_header", c.GetHeader(cfg.HeaderName))
				dto.Error(c, apperrors.ErrTenantAccessDenied)
			default:
				logger.Error(ctx, "tenant context resolution failed", err)
				dto.Error(c, apperrors.ErrInternalError)
			}
			return
		}

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("tenancy.kind", string(tc.Kind())))

		ctx = tenancy.WithContext(ctx, tc)
		if settings, ok := tenancy.SettingsFor(tc); ok && settings.CurrentLabID != "" {
			ctx = logger.WithContext(ctx, logger.LabIDKey, settings.CurrentLabID)
			span.SetAttributes(attribute.String("lab.id", settings.CurrentLabID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// TenantFromGin 读取请求的租户上下文，未解析时为 Unscoped
func TenantFromGin(c *gin.Context) tenancy.Context {
	return tenancy.MustFromContext(c.Request.Context())
}
