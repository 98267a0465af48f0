// Package messaging 将安全事件发布到 Redis Stream，供审计侧消费
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message 流消息信封
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	LabID     string            `json:"lab_id,omitempty"`
	SubjectID string            `json:"subject_id,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(msgType, labID, subjectID string, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		LabID:     labID,
		SubjectID: subjectID,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// Stream 流定义
type Stream string

const (
	StreamSecurityEvents Stream = "stream:security:events"
)

// 消息类型
const (
	TypeTenantAccessDenied = "tenant_access_denied"
)

// 元数据键
const (
	MetaSource  = "source"
	MetaTraceID = "trace_id"
)
