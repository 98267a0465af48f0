package router

import (
	"github.com/gin-gonic/gin"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, tx repository.Transactor) {
	// 账号
	if h.Auth != nil {
		auth := v1.Group("/auth")
		{
			auth.POST("/recover", h.Auth.Recover)
		}
	}

	// 租户上下文诊断
	if h.Context != nil {
		v1.GET("/context", h.Context.Get)
		v1.GET("/context/lab", middleware.RequireLabScope(), h.Context.Get)
	}

	// 样本
	if h.Sample != nil {
		samples := v1.Group("/samples")
		{
			samples.GET("", middleware.RequireRole(entity.RoleViewer), h.Sample.List)

			create := []gin.HandlerFunc{middleware.RequireRole(entity.RoleTechnician)}
			if tx != nil {
				create = append(create, middleware.DBTransaction(tx))
			}
			create = append(create, h.Sample.Create)
			samples.POST("", create...)
		}
	}
}
