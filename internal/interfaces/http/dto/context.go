package dto

// TenantContextResponse 当前请求解析出的租户上下文
type TenantContextResponse struct {
	Kind    string                  `json:"kind"`
	LabID   string                  `json:"lab_id,omitempty"`
	LabName string                  `json:"lab_name,omitempty"`
	Role    string                  `json:"role,omitempty"`
	Session *SessionSettingsPayload `json:"session,omitempty"`
}

// SessionSettingsPayload 存储连接上生效的会话设置
type SessionSettingsPayload struct {
	IsGlobalAdmin bool   `json:"is_global_admin"`
	CurrentLabID  string `json:"current_lab_id"`
}

// AccountRecoveryRequest 账号找回请求
type AccountRecoveryRequest struct {
	Email string `json:"email" binding:"required,email"`
}
