// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
)

// MembershipRole 实验室成员角色
type MembershipRole string

const (
	RoleViewer     MembershipRole = "viewer"
	RoleTechnician MembershipRole = "technician"
	RoleAdmin      MembershipRole = "admin"
)

// roleRank 角色等级，数值越大权限越高
var roleRank = map[MembershipRole]int{
	RoleViewer:     1,
	RoleTechnician: 2,
	RoleAdmin:      3,
}

// ParseMembershipRole 解析角色字符串，未知取值返回错误
func ParseMembershipRole(s string) (MembershipRole, error) {
	role := MembershipRole(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("unknown membership role %q", s)
	}
	return role, nil
}

// Valid 检查角色是否为已知取值
func (r MembershipRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast 检查角色是否不低于 min
func (r MembershipRole) AtLeast(min MembershipRole) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}
