package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/pkg/metrics"
)

// 会话级设置（is_local=false），在连接的整个生命周期内有效，
// 因此每次从连接池取出连接都必须重新写入或清空。
const (
	settingGlobalAdmin = "app.is_global_admin"
	settingCurrentLab  = "app.current_lab_id"

	applySessionSQL = `SELECT set_config('` + settingGlobalAdmin + `', $1, false), set_config('` + settingCurrentLab + `', $2, false)`
	readSessionSQL  = `SELECT current_setting('` + settingGlobalAdmin + `', true), current_setting('` + settingCurrentLab + `', true)`
)

// SessionExecer 能执行语句的连接
type SessionExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SessionPropagator 在连接取出时推送请求的租户会话设置
//
// 请求 context 上附加了 Scoped 或 GlobalAdmin 时写入两个设置；
// 未附加（后台任务、迁移、匿名请求）时两个设置都清空，行级安全策略默认拒绝所有租户行。
type SessionPropagator struct{}

// NewSessionPropagator 创建会话设置推送器
func NewSessionPropagator() *SessionPropagator {
	return &SessionPropagator{}
}

// Apply 在连接上写入 ctx 对应的会话设置
func (p *SessionPropagator) Apply(ctx context.Context, conn SessionExecer) error {
	mode := "cleared"
	settings, ok := tenancy.SettingsFor(tenancy.MustFromContext(ctx))
	if ok {
		mode = "scoped"
		if settings.IsGlobalAdmin {
			mode = "global_admin"
		}
	}

	isAdmin := ""
	if ok {
		isAdmin = strconv.FormatBool(settings.IsGlobalAdmin)
	}

	if _, err := conn.Exec(ctx, applySessionSQL, isAdmin, settings.CurrentLabID); err != nil {
		metrics.StorageSessionPropagations.WithLabelValues(mode, "error").Inc()
		return fmt.Errorf("failed to apply tenant session settings: %w", err)
	}
	metrics.StorageSessionPropagations.WithLabelValues(mode, "ok").Inc()
	return nil
}

// PrepareConn 作为 pgxpool.Config.PrepareConn 使用，每次取出连接时执行
//
// 推送失败时返回 false 销毁该连接，本次取连接失败，查询不会在错误的会话设置下执行。
func (p *SessionPropagator) PrepareConn(ctx context.Context, conn *pgx.Conn) (bool, error) {
	if err := p.Apply(ctx, conn); err != nil {
		return false, err
	}
	return true, nil
}
