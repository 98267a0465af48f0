package wire

import (
	"context"

	"github.com/google/wire"

	"lab-data-api/internal/application/ratelimit"
	apptenancy "lab-data-api/internal/application/tenancy"
	"lab-data-api/internal/config"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/infrastructure/messaging"
	"lab-data-api/internal/infrastructure/persistence/postgres"
	"lab-data-api/internal/infrastructure/persistence/redis"
	"lab-data-api/internal/interfaces/http/handler"
	"lab-data-api/internal/interfaces/http/middleware"
	"lab-data-api/internal/interfaces/http/router"
	"lab-data-api/pkg/logger"
)

// 放行事件日志的采样速率
const (
	failOpenLogPerSecond = 1
	failOpenLogBurst     = 5
)

// PostgresSet PostgreSQL 提供者集合
//
// 控制面（实验室、成员关系）走 gorm 客户端；业务表走带会话设置钩子的 pgx 连接池。
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewSessionPropagator,
	ProvideStore,
	postgres.NewTxManager,
	postgres.NewMembershipRepository,
	postgres.NewLabRepository,
	postgres.NewSampleRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.LabRepository), new(*postgres.LabRepository)),
	wire.Bind(new(repository.SampleRepository), new(*postgres.SampleRepository)),
	wire.Bind(new(repository.SessionInspector), new(*postgres.Store)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewCounterStore,
	wire.Bind(new(repository.CounterStore), new(*redis.CounterStore)),
)

// SecuritySet 限流与租户解析提供者集合
var SecuritySet = wire.NewSet(
	ProvideRegistry,
	ProvideEventRecorder,
	ProvideLimiter,
	ProvideMembershipRepository,
	ProvideProducer,
	ProvideResolver,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewContextHandler,
	handler.NewSampleHandler,
	handler.NewAuthHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouterDeps,
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 控制面客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideStore 提供业务连接池
func ProvideStore(ctx context.Context, cfg *config.Config, propagator *postgres.SessionPropagator) (*postgres.Store, func(), error) {
	store, err := postgres.NewStore(ctx, &cfg.Database.Postgres, propagator)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// ProvideRedisClient 提供 Redis 客户端
//
// Redis 不可达时不阻止启动，限流按放行处理，成员关系缓存回退到直接查询。
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, rate limiting will fail open", "error", err.Error())
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRegistry 从配置加载端点限流策略
func ProvideRegistry(cfg *config.Config) (*ratelimit.Registry, error) {
	return RegistryFromConfig(&cfg.Security.RateLimit)
}

// RegistryFromConfig 将配置中的策略转换为注册表
func RegistryFromConfig(cfg *config.RateLimitConfig) (*ratelimit.Registry, error) {
	overrides := make([]ratelimit.Policy, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		strategy, err := ratelimit.ParseKeyStrategy(p.KeyStrategy)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, ratelimit.Policy{
			Name:      p.Name,
			Method:    p.Method,
			Route:     p.Route,
			Threshold: p.Threshold,
			Window:    p.Window,
			Strategy:  strategy,
			Field:     p.Field,
		})
	}
	return ratelimit.NewRegistry(ratelimit.Policy{
		Threshold: cfg.DefaultThreshold,
		Window:    cfg.DefaultWindow,
	}, overrides)
}

// ProvideEventRecorder 提供放行事件记录器
func ProvideEventRecorder() ratelimit.EventRecorder {
	return ratelimit.NewLogRecorder(failOpenLogPerSecond, failOpenLogBurst)
}

// ProvideLimiter 提供限流器
func ProvideLimiter(cfg *config.Config, registry *ratelimit.Registry, store repository.CounterStore, events ratelimit.EventRecorder) *ratelimit.Limiter {
	return ratelimit.NewLimiter(registry, store, events, ratelimit.Options{
		KeyPrefix:    cfg.Security.RateLimit.KeyPrefix,
		StoreTimeout: cfg.Security.RateLimit.StoreTimeout,
	})
}

// ProvideMembershipRepository 成员关系查询，配置了缓存 TTL 时经过 Redis 缓存
func ProvideMembershipRepository(cfg *config.Config, cache *redis.Cache, live *postgres.MembershipRepository) repository.MembershipRepository {
	if cfg.Security.Tenancy.MembershipCacheTTL <= 0 {
		return live
	}
	return redis.NewMembershipCache(cache, live, cfg.Security.Tenancy.MembershipCacheTTL)
}

// ProvideProducer 提供安全事件生产者，未启用时返回 nil
func ProvideProducer(cfg *config.Config, rc *redis.Client) *messaging.Producer {
	if !cfg.Messaging.SecurityEvents.Enabled {
		return nil
	}
	return messaging.NewProducer(rc.Redis(), cfg.Messaging.SecurityEvents.MaxLen)
}

// ProvideResolver 提供租户上下文解析器，拒绝事件写入安全事件流
func ProvideResolver(cfg *config.Config, memberships repository.MembershipRepository, producer *messaging.Producer) *apptenancy.Resolver {
	r := apptenancy.NewResolver(memberships, cfg.Security.Tenancy.GlobalAdminSubject)
	if producer != nil {
		r.WithDenialRecorder(producer)
	}
	return r
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, store *postgres.Store, rc *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, pg, store, rc)
}

// ProvideRouterDeps 组装路由依赖
func ProvideRouterDeps(handlers router.Handlers, limiter *ratelimit.Limiter, resolver *apptenancy.Resolver, tx repository.Transactor) router.Deps {
	return router.Deps{
		Handlers: handlers,
		Limiter:  limiter,
		Resolver: resolver,
		Tx:       tx,
	}
}

var _ middleware.TenantResolver = (*apptenancy.Resolver)(nil)
