// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// LabStatus 实验室（租户）状态
type LabStatus string

const (
	LabStatusActive    LabStatus = "active"
	LabStatusSuspended LabStatus = "suspended"
)

// Lab 实验室（租户）实体
//
// 软删除通过 DeletedAt 表示；已删除或非 active 的实验室在授权上等同于不存在。
type Lab struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string     `json:"name"`
	Status    LabStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// TableName 指定表名
func (Lab) TableName() string { return "labs" }

// IsActive 检查实验室是否可用于授权
func (l *Lab) IsActive() bool {
	return l.Status == LabStatusActive && l.DeletedAt == nil
}
