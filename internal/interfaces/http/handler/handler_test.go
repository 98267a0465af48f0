package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/repository"
	"lab-data-api/internal/domain/tenancy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memSamples struct {
	created []*entity.Sample
	list    []*entity.Sample
	err     error
}

func (m *memSamples) Create(_ context.Context, s *entity.Sample) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, s)
	return nil
}

func (m *memSamples) List(_ context.Context, p repository.Pagination) ([]*entity.Sample, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

type staticLabs map[uuid.UUID]*entity.Lab

func (s staticLabs) GetByID(_ context.Context, id uuid.UUID) (*entity.Lab, error) {
	return s[id], nil
}

type staticSessions tenancy.SessionSettings

func (s staticSessions) CurrentSettings(context.Context) (tenancy.SessionSettings, error) {
	return tenancy.SessionSettings(s), nil
}

// withTenant 模拟上游中间件附加的租户上下文
func withTenant(tc tenancy.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenancy.WithContext(c.Request.Context(), tc))
		c.Next()
	}
}

func scoped(t *testing.T, lab uuid.UUID, role entity.MembershipRole) tenancy.Context {
	t.Helper()
	sc, err := tenancy.NewScoped(&entity.LabMembership{SubjectID: "u1", LabID: lab, Role: role})
	require.NoError(t, err)
	return sc
}

func TestSampleHandler_Create(t *testing.T) {
	lab := uuid.New()
	repo := &memSamples{}
	h := NewSampleHandler(repo)

	e := gin.New()
	e.POST("/scoped", withTenant(scoped(t, lab, entity.RoleTechnician)), h.Create)
	e.POST("/admin", withTenant(tenancy.NewGlobalAdmin(uuid.Nil)), h.Create)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scoped", strings.NewReader(`{"code":" S-1 ","matrix":"water"}`)))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, lab, repo.created[0].LabID)
	assert.Equal(t, "S-1", repo.created[0].Code)
	assert.Equal(t, entity.SampleStatusReceived, repo.created[0].Status)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin", strings.NewReader(`{"code":"S-2"}`)))
	assert.Equal(t, http.StatusForbidden, w.Code, "global admin must name a target lab to write")
	assert.Contains(t, w.Body.String(), "LabContextRequired")

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scoped", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSampleHandler_ListErrorIsInternal(t *testing.T) {
	h := NewSampleHandler(&memSamples{err: errors.New("pool exhausted")})
	e := gin.New()
	e.GET("/samples", h.List)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/samples", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pool exhausted")
}

func TestSampleHandler_List(t *testing.T) {
	lab := uuid.New()
	h := NewSampleHandler(&memSamples{list: []*entity.Sample{entity.NewSample(lab, "S-1", "soil", "u1")}})
	e := gin.New()
	e.GET("/samples", h.List)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/samples?page=2&page_size=500", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []map[string]any `json:"data"`
		Meta map[string]int   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "S-1", body.Data[0]["code"])
	assert.Equal(t, 2, body.Meta["page"])
	assert.Equal(t, 100, body.Meta["page_size"])
}

func TestContextHandler(t *testing.T) {
	lab := uuid.New()
	h := NewContextHandler(
		staticLabs{lab: {ID: lab, Name: "North Lab", Status: entity.LabStatusActive}},
		staticSessions{CurrentLabID: lab.String()},
	)
	e := gin.New()
	e.GET("/ctx", withTenant(scoped(t, lab, entity.RoleViewer)), h.Get)
	e.GET("/anon", h.Get)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ctx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Kind    string `json:"kind"`
			LabID   string `json:"lab_id"`
			LabName string `json:"lab_name"`
			Role    string `json:"role"`
			Session struct {
				CurrentLabID string `json:"current_lab_id"`
			} `json:"session"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "scoped", body.Data.Kind)
	assert.Equal(t, "North Lab", body.Data.LabName)
	assert.Equal(t, "viewer", body.Data.Role)
	assert.Equal(t, lab.String(), body.Data.Session.CurrentLabID)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"unscoped"`)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		pg       HealthChecker
		redis    HealthChecker
		wantCode int
	}{
		{"all ok", checker{}, checker{}, http.StatusOK},
		{"redis down is degraded", checker{}, checker{err: errors.New("refused")}, http.StatusOK},
		{"postgres down", checker{err: errors.New("refused")}, checker{}, http.StatusServiceUnavailable},
		{"postgres missing", nil, checker{}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("v1", tt.pg, checker{}, tt.redis)
			e := gin.New()
			e.GET("/ready", h.Ready)

			w := httptest.NewRecorder()
			e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestRecoverAcceptsAnyEmail(t *testing.T) {
	e := gin.New()
	e.POST("/recover", NewAuthHandler().Recover)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/recover", strings.NewReader(`{"email":"nobody@lab.io"}`)))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/recover", strings.NewReader(`{"email":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
