package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/internal/interfaces/http/dto"
	"lab-data-api/internal/interfaces/http/middleware"
)

// ContextHandler 租户上下文诊断处理器
type ContextHandler struct {
	labs     repository.LabRepository
	sessions repository.SessionInspector
}

// NewContextHandler 创建租户上下文处理器
func NewContextHandler(labs repository.LabRepository, sessions repository.SessionInspector) *ContextHandler {
	return &ContextHandler{labs: labs, sessions: sessions}
}

// Get 返回当前请求解析出的租户上下文以及存储连接上实际生效的会话设置
func (h *ContextHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	tc := middleware.TenantFromGin(c)
	resp := &dto.TenantContextResponse{Kind: string(tc.Kind())}

	var lab uuid.UUID
	switch v := tc.(type) {
	case tenancy.Scoped:
		lab = v.LabID()
		resp.Role = string(v.Role())
	case tenancy.GlobalAdmin:
		lab, _ = v.TargetLab()
	}

	if lab != uuid.Nil {
		resp.LabID = lab.String()
		if h.labs != nil {
			l, err := h.labs.GetByID(ctx, lab)
			if err != nil {
				respondError(c, "failed to load lab", err)
				return
			}
			if l != nil {
				resp.LabName = l.Name
			}
		}
	}

	if h.sessions != nil {
		settings, err := h.sessions.CurrentSettings(ctx)
		if err != nil {
			respondError(c, "failed to read session settings", err)
			return
		}
		resp.Session = &dto.SessionSettingsPayload{
			IsGlobalAdmin: settings.IsGlobalAdmin,
			CurrentLabID:  settings.CurrentLabID,
		}
	}

	dto.Success(c, resp)
}
