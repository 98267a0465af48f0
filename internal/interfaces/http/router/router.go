// Package router 提供 HTTP 路由配置
package router

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lab-data-api/internal/application/ratelimit"
	"lab-data-api/internal/config"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/interfaces/http/handler"
	"lab-data-api/internal/interfaces/http/middleware"
	"lab-data-api/pkg/logger"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Context *handler.ContextHandler
	Sample  *handler.SampleHandler
	Auth    *handler.AuthHandler
}

// Deps 路由依赖
type Deps struct {
	Handlers Handlers
	Limiter  *ratelimit.Limiter
	Resolver middleware.TenantResolver
	// Tx 业务库事务管理，写操作在同一事务内执行
	Tx repository.Transactor
	// TokenParser 为空时按配置创建 JWT 解析器
	TokenParser middleware.TokenParser
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   Deps
}

// New 创建新的路由器
func New(cfg *config.Config, deps Deps) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 客户端地址只信任配置的代理转发头，限流按网络地址计数依赖这一点
	if err := engine.SetTrustedProxies(cfg.Security.RateLimit.TrustedProxies); err != nil {
		logger.Warn(context.Background(), "invalid trusted proxies, forwarding headers will be ignored", "error", err)
		_ = engine.SetTrustedProxies(nil)
	}
	if len(cfg.Security.RateLimit.RemoteIPHeaders) > 0 {
		engine.RemoteIPHeaders = cfg.Security.RateLimit.RemoteIPHeaders
	}

	r := &Router{
		engine: engine,
		cfg:    cfg,
		deps:   deps,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置全局中间件
//
// 顺序：认证在限流之前（identity 策略需要主体），限流在租户解析之前（超限请求不触发成员查询）。
func (r *Router) setupMiddleware() {
	skipPaths := r.skipPaths()

	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, skipPaths...))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(skipPaths...))
	}

	r.engine.Use(middleware.Audit(middleware.AuditConfig{
		Enabled:   true,
		SkipPaths: skipPaths,
	}))

	// 认证
	if r.deps.TokenParser != nil {
		r.engine.Use(middleware.AuthWithParser(r.deps.TokenParser))
	} else {
		r.engine.Use(middleware.Auth(middleware.AuthConfig{
			Secret: r.cfg.Security.JWT.Secret,
			Issuer: r.cfg.Security.JWT.Issuer,
		}))
	}

	// 限流
	r.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:      r.cfg.Security.RateLimit.Enabled,
		MaxBodyBytes: r.cfg.Security.RateLimit.MaxBodyBytes,
	}, r.deps.Limiter))

	// 租户上下文
	r.engine.Use(middleware.TenantContext(middleware.TenantConfig{
		HeaderName: r.cfg.Security.Tenancy.HeaderName,
	}, r.deps.Resolver))
}

func (r *Router) skipPaths() []string {
	paths := append([]string(nil), middleware.DefaultSkipPaths...)
	if p := r.cfg.Observability.Metrics.Path; p != "" && p != "/metrics" {
		paths = append(paths, p)
	}
	return paths
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.deps.Handlers

	// 系统端点
	if h.Health != nil {
		r.engine.GET("/health", h.Health.Health)
		r.engine.GET("/ready", h.Health.Ready)
		r.engine.GET("/live", h.Health.Live)
	}

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	RegisterV1Routes(r.engine.Group("/v1"), h, r.deps.Tx)
}
