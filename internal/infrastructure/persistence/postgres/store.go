package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lab-data-api/internal/config"
	"lab-data-api/internal/domain/tenancy"
)

// Store 受行级安全约束的业务存储连接池
type Store struct {
	pool *pgxpool.Pool
}

// NewStore 创建业务连接池，并在每次取出连接时推送租户会话设置
func NewStore(ctx context.Context, cfg *config.PostgresConfig, propagator *SessionPropagator) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	poolCfg.PrepareConn = propagator.PrepareConn

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close 关闭连接池
func (s *Store) Close() {
	s.pool.Close()
}

// HealthCheck 健康检查
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Store.HealthCheck")
	defer span.End()

	if err := s.pool.Ping(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CurrentSettings 实现 repository.SessionInspector
func (s *Store) CurrentSettings(ctx context.Context) (tenancy.SessionSettings, error) {
	ctx, span := tracer.Start(ctx, "postgres.Store.CurrentSettings")
	defer span.End()

	var isAdmin, labID *string
	if err := getQuerier(ctx, s.pool).QueryRow(ctx, readSessionSQL).Scan(&isAdmin, &labID); err != nil {
		span.RecordError(err)
		return tenancy.SessionSettings{}, fmt.Errorf("failed to read session settings: %w", err)
	}

	var out tenancy.SessionSettings
	if isAdmin != nil {
		out.IsGlobalAdmin = *isAdmin == "true"
	}
	if labID != nil {
		out.CurrentLabID = *labID
	}
	return out, nil
}
