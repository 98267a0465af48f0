package ratelimit

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// 实际使用的键类型（回退后），写入键的 strategy 段
const (
	keyKindIP    = "ip"
	keyKindUser  = "user"
	keyKindField = "field"
)

const (
	scopeGlobal = "global"
	scopeRoute  = "route"
)

// Descriptor 限流判定所需的请求描述
type Descriptor struct {
	Method    string
	Route     string
	ClientIP  string
	SubjectID string
	// Field 读取请求体中的字段；nil 表示请求没有可读取的请求体
	Field func(name string) (string, bool)
}

// deriveIdentifier 按策略推导标识，返回实际使用的键类型与标识
func deriveIdentifier(p Policy, d Descriptor) (kind, id string) {
	switch p.Strategy {
	case StrategyIdentity:
		if s := strings.TrimSpace(d.SubjectID); s != "" {
			return keyKindUser, s
		}
	case StrategyExtractedField:
		if d.Field != nil {
			if v, ok := d.Field(p.Field); ok {
				if v = normalizeField(v); v != "" {
					return keyKindField, hashField(v)
				}
			}
		}
	}
	return keyKindIP, networkIdentifier(d.ClientIP)
}

// buildKey 组合限流键：prefix:strategy:scope:[policy]:identifier
func buildKey(prefix string, p Policy, kind, id string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(p.Name) + len(id) + 24)
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(kind)
	b.WriteByte(':')
	if p.routeScoped() {
		b.WriteString(scopeRoute)
		b.WriteByte(':')
		b.WriteString(p.Name)
	} else {
		b.WriteString(scopeGlobal)
	}
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

func networkIdentifier(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return ip
}

func normalizeField(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// hashField 字段值（如邮箱）不以明文写入计数键
func hashField(v string) string {
	return strconv.FormatUint(xxhash.Sum64String(v), 16)
}
