// Package ratelimit 实现请求限流：路由策略注册表、限流键推导与计数判定
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// KeyStrategy 限流键推导策略
type KeyStrategy string

const (
	// StrategyNetworkAddress 按调用方网络地址（遵循受信任的转发头）
	StrategyNetworkAddress KeyStrategy = "ip"
	// StrategyIdentity 按已验证的主体 ID，匿名调用方回退到网络地址
	StrategyIdentity KeyStrategy = "identity"
	// StrategyExtractedField 按请求体内指定字段，缺失或无法解析时回退到网络地址
	StrategyExtractedField KeyStrategy = "field"
)

// ParseKeyStrategy 解析配置中的策略名，空值为网络地址
func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch KeyStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyNetworkAddress:
		return StrategyNetworkAddress, nil
	case StrategyIdentity, "user":
		return StrategyIdentity, nil
	case StrategyExtractedField:
		return StrategyExtractedField, nil
	default:
		return "", fmt.Errorf("unknown key strategy %q", s)
	}
}

// Policy 单个端点的限流策略，加载后不可变
type Policy struct {
	Name      string
	Method    string
	Route     string
	Threshold int
	Window    time.Duration
	Strategy  KeyStrategy
	Field     string
}

// routeScoped 是否为路由级策略（默认策略为全局级）
func (p Policy) routeScoped() bool {
	return p.Route != ""
}

func (p Policy) validate() error {
	if p.Threshold <= 0 {
		return fmt.Errorf("policy %q: threshold must be positive", p.Name)
	}
	if p.Window < time.Second {
		return fmt.Errorf("policy %q: window must be at least 1s", p.Name)
	}
	if p.Strategy == StrategyExtractedField && strings.TrimSpace(p.Field) == "" {
		return fmt.Errorf("policy %q: field strategy requires a field name", p.Name)
	}
	if strings.ContainsAny(p.Name, ": ") {
		return fmt.Errorf("policy %q: name must not contain ':' or spaces", p.Name)
	}
	return nil
}

// Registry 端点策略注册表，启动时加载一次，之后只读
type Registry struct {
	defaultPolicy Policy
	byRoute       map[string]Policy
}

// NewRegistry 创建并校验策略注册表
func NewRegistry(defaultPolicy Policy, overrides []Policy) (*Registry, error) {
	defaultPolicy.Name = "default"
	defaultPolicy.Method = ""
	defaultPolicy.Route = ""
	if defaultPolicy.Strategy == "" {
		defaultPolicy.Strategy = StrategyNetworkAddress
	}
	if err := defaultPolicy.validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		defaultPolicy: defaultPolicy,
		byRoute:       make(map[string]Policy, len(overrides)),
	}

	names := make(map[string]bool, len(overrides))
	for _, p := range overrides {
		p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
		p.Route = strings.TrimSpace(p.Route)
		if p.Route == "" {
			return nil, fmt.Errorf("policy %q: route is required", p.Name)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("policy for route %q: name is required", p.Route)
		}
		if p.Strategy == "" {
			p.Strategy = StrategyNetworkAddress
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate policy name %q", p.Name)
		}
		names[p.Name] = true

		k := routeKey(p.Method, p.Route)
		if _, dup := r.byRoute[k]; dup {
			return nil, fmt.Errorf("duplicate policy for %q", k)
		}
		r.byRoute[k] = p
	}

	return r, nil
}

// Match 按方法与路由模板匹配策略：方法精确匹配优先，其次是不限方法的策略，最后是默认策略
func (r *Registry) Match(method, route string) Policy {
	if route != "" {
		if p, ok := r.byRoute[routeKey(strings.ToUpper(method), route)]; ok {
			return p
		}
		if p, ok := r.byRoute[routeKey("", route)]; ok {
			return p
		}
	}
	return r.defaultPolicy
}

// Default 返回默认策略
func (r *Registry) Default() Policy {
	return r.defaultPolicy
}

// Len 返回路由级策略数量
func (r *Registry) Len() int {
	return len(r.byRoute)
}

func routeKey(method, route string) string {
	return method + " " + route
}
