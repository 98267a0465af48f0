package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/pkg/logger"
	"lab-data-api/pkg/metrics"
)

// MaxMembershipCacheTTL 成员关系缓存的过期上限，决定撤销与降级的最大可见延迟
const MaxMembershipCacheTTL = 60 * time.Second

// membershipLoadTimeout 合并加载的超时，加载不随单个调用方取消
const membershipLoadTimeout = 5 * time.Second

const membershipKeyPrefix = "membership"

type cachedMembership struct {
	SubjectID string    `json:"subject_id"`
	LabID     string    `json:"lab_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipCache 成员关系读穿缓存
//
// 只缓存查询到的成员关系，不缓存"无成员关系"，新授予的成员关系立即可见。
// 缓存读写失败时直接查询下游，不影响判定结果。
type MembershipCache struct {
	cache *Cache
	next  repository.MembershipRepository
	ttl   time.Duration
}

// NewMembershipCache 创建成员关系缓存，ttl 超过上限时按上限处理
func NewMembershipCache(cache *Cache, next repository.MembershipRepository, ttl time.Duration) *MembershipCache {
	if ttl > MaxMembershipCacheTTL {
		ttl = MaxMembershipCacheTTL
	}
	return &MembershipCache{cache: cache, next: next, ttl: ttl}
}

// Lookup 实现 repository.MembershipRepository
func (c *MembershipCache) Lookup(ctx context.Context, subjectID string, labID uuid.UUID) (*entity.LabMembership, error) {
	if c.ttl <= 0 {
		return c.next.Lookup(ctx, subjectID, labID)
	}

	key := membershipKey(subjectID, labID)
	start := time.Now()
	if raw, err := c.cache.Get(ctx, key); err == nil {
		if m, decErr := decodeMembership(raw); decErr == nil {
			metrics.MembershipLookupDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
			return m, nil
		}
		logger.Warn(ctx, "discarding malformed membership cache entry", "key", key)
	} else if !IsNil(err) {
		logger.Warn(ctx, "membership cache read failed", "key", key, "error", err)
	}

	v, err, _ := c.cache.Once(ctx, key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), membershipLoadTimeout)
		defer cancel()

		m, err := c.next.Lookup(loadCtx, subjectID, labID)
		if err != nil || m == nil {
			return m, err
		}
		if err := c.cache.Set(loadCtx, key, encodeMembership(m), c.ttl); err != nil {
			logger.Warn(loadCtx, "membership cache write failed", "key", key, "error", err)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	m, _ := v.(*entity.LabMembership)
	if m == nil {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// Invalidate 删除 (subject, lab) 的缓存项，成员关系撤销或角色变更后调用
func (c *MembershipCache) Invalidate(ctx context.Context, subjectID string, labID uuid.UUID) error {
	return c.cache.Delete(ctx, membershipKey(subjectID, labID))
}

func membershipKey(subjectID string, labID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", membershipKeyPrefix, labID, subjectID)
}

func encodeMembership(m *entity.LabMembership) cachedMembership {
	return cachedMembership{
		SubjectID: m.SubjectID,
		LabID:     m.LabID.String(),
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func decodeMembership(raw []byte) (*entity.LabMembership, error) {
	var cm cachedMembership
	if err := json.Unmarshal(raw, &cm); err != nil {
		return nil, err
	}
	labID, err := uuid.Parse(cm.LabID)
	if err != nil {
		return nil, err
	}
	role, err := entity.ParseMembershipRole(cm.Role)
	if err != nil {
		return nil, err
	}
	return &entity.LabMembership{
		SubjectID: cm.SubjectID,
		LabID:     labID,
		Role:      role,
		CreatedAt: cm.CreatedAt,
	}, nil
}
