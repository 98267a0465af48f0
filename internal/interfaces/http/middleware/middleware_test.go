package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lab-data-api/internal/application/ratelimit"
	apptenancy "lab-data-api/internal/application/tenancy"
	"lab-data-api/internal/domain/entity"
	"lab-data-api/internal/domain/tenancy"
	"lab-data-api/internal/infrastructure/persistence/redis"
	"lab-data-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type capturedEvents struct {
	mu     sync.Mutex
	events []ratelimit.FailOpenEvent
}

func (c *capturedEvents) RecordFailOpen(_ context.Context, ev ratelimit.FailOpenEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func newLimiter(t *testing.T, events ratelimit.EventRecorder) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	reg, err := ratelimit.NewRegistry(ratelimit.Policy{Threshold: 100, Window: time.Minute}, []ratelimit.Policy{
		{Name: "sample-intake", Method: "POST", Route: "/v1/samples", Threshold: 2, Window: time.Minute},
		{Name: "account-recovery", Method: "POST", Route: "/v1/auth/recover", Threshold: 2, Window: 15 * time.Minute,
			Strategy: ratelimit.StrategyExtractedField, Field: "email"},
		{Name: "per-user", Method: "GET", Route: "/v1/samples", Threshold: 1, Window: time.Minute, Strategy: ratelimit.StrategyIdentity},
	})
	require.NoError(t, err)
	store := redis.NewCounterStore(redis.NewClientFromRedis(rdb))
	return ratelimit.NewLimiter(reg, store, events, ratelimit.Options{KeyPrefix: "rl", StoreTimeout: 200 * time.Millisecond}), mr
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := utils.NewJWTManager(testSecret, "").GenerateToken(subject, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func do(e *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRateLimit_HeadersAndRejection(t *testing.T) {
	limiter, _ := newLimiter(t, nil)
	e := gin.New()
	e.Use(AuthWithParser(utils.NewJWTManager(testSecret, "")), RateLimit(RateLimitConfig{Enabled: true}, limiter))
	e.POST("/v1/samples", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i, want := range []string{"1", "0"} {
		w := do(e, httptest.NewRequest(http.MethodPost, "/v1/samples", nil))
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, want, w.Header().Get(HeaderRateLimitRemaining))
		assert.NotEmpty(t, w.Header().Get(HeaderRateLimitReset))
		assert.Empty(t, w.Header().Get(HeaderRetryAfter))
	}

	w := do(e, httptest.NewRequest(http.MethodPost, "/v1/samples", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", w.Header().Get(HeaderRateLimitRemaining))

	body := decodeError(t, w)
	assert.Equal(t, "RateLimitExceeded", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.EqualValues(t, 60, body["retryAfter"])
}

func TestRateLimit_FailOpenWhenStoreDown(t *testing.T) {
	events := &capturedEvents{}
	limiter, mr := newLimiter(t, events)
	mr.Close()

	e := gin.New()
	e.Use(RateLimit(RateLimitConfig{Enabled: true}, limiter))
	e.POST("/v1/samples", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 5; i++ {
		w := do(e, httptest.NewRequest(http.MethodPost, "/v1/samples", nil))
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "2", w.Header().Get(HeaderRateLimitRemaining))
	}
	require.Len(t, events.events, 5)
	assert.Equal(t, "rl:ip:route:sample-intake:192.0.2.1", events.events[0].Key)
}

func TestRateLimit_FieldStrategyKeepsBody(t *testing.T) {
	limiter, _ := newLimiter(t, nil)
	e := gin.New()
	e.Use(RateLimit(RateLimitConfig{Enabled: true, MaxBodyBytes: 1024}, limiter))
	e.POST("/v1/auth/recover", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusAccepted, string(b))
	})

	send := func(remote, email string) *httptest.ResponseRecorder {
		payload := `{"email":"` + email + `"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/recover", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote + ":4000"
		w := do(e, req)
		if w.Code == http.StatusAccepted {
			assert.Equal(t, payload, w.Body.String(), "handler sees the full body")
		}
		return w
	}

	assert.Equal(t, http.StatusAccepted, send("10.0.0.1", "a@lab.io").Code)
	assert.Equal(t, http.StatusAccepted, send("10.0.0.2", "a@lab.io").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.3", "A@lab.io").Code, "same field from a new address is limited")
	assert.Equal(t, http.StatusAccepted, send("10.0.0.3", "b@lab.io").Code)
}

func TestRateLimit_IdentityStrategy(t *testing.T) {
	limiter, _ := newLimiter(t, nil)
	e := gin.New()
	e.Use(AuthWithParser(utils.NewJWTManager(testSecret, "")), RateLimit(RateLimitConfig{Enabled: true}, limiter))
	e.GET("/v1/samples", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(auth string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/samples", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		return do(e, req).Code
	}

	assert.Equal(t, http.StatusOK, get(token(t, "u1")))
	assert.Equal(t, http.StatusTooManyRequests, get(token(t, "u1")))
	assert.Equal(t, http.StatusOK, get(token(t, "u2")))
	// 匿名请求按地址计数
	assert.Equal(t, http.StatusOK, get(""))
}

func TestRateLimit_Disabled(t *testing.T) {
	e := gin.New()
	e.Use(RateLimit(RateLimitConfig{Enabled: false}, nil))
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(HeaderRateLimitLimit))
}

func TestAuth(t *testing.T) {
	e := gin.New()
	e.Use(Auth(AuthConfig{Secret: testSecret}))
	e.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, SubjectID(c)) })

	w := do(e, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String(), "anonymous request continues")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", token(t, "u1"))
	w = do(e, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	for _, h := range []string{"Bearer not-a-jwt", "Basic abc", "Bearer "} {
		req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", h)
		w = do(e, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, h)
		assert.Equal(t, "Unauthorized", decodeError(t, w)["error"], h)
	}

	expired, err := utils.NewJWTManager(testSecret, "").GenerateToken("u1", -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = do(e, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", decodeError(t, w)["message"])
}

type stubMemberships struct {
	rows map[string]*entity.LabMembership
	err  error
}

func (s *stubMemberships) Lookup(_ context.Context, subjectID string, labID uuid.UUID) (*entity.LabMembership, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows[subjectID+"/"+labID.String()], nil
}

const adminSubject = "root-admin"

func tenantEngine(t *testing.T, store *stubMemberships, handlers ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	e := gin.New()
	e.Use(
		AuthWithParser(utils.NewJWTManager(testSecret, "")),
		TenantContext(TenantConfig{}, apptenancy.NewResolver(store, adminSubject)),
	)
	chain := append(handlers, func(c *gin.Context) {
		tc := TenantFromGin(c)
		out := gin.H{"kind": tc.Kind()}
		if sc, ok := tc.(tenancy.Scoped); ok {
			out["lab"] = sc.LabID().String()
			out["role"] = sc.Role()
		}
		c.JSON(http.StatusOK, out)
	})
	e.GET("/v1/context", chain...)
	return e
}

func contextRequest(t *testing.T, subject, lab string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	if subject != "" {
		req.Header.Set("Authorization", token(t, subject))
	}
	if lab != "" {
		req.Header.Set(DefaultLabHeader, lab)
	}
	return req
}

func TestTenantContext_NoMembershipIs403(t *testing.T) {
	e := tenantEngine(t, &stubMemberships{})

	w := do(e, contextRequest(t, "u1", "11111111-1111-1111-1111-111111111111"))
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "TenantAccessDenied", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, w.Body.String(), "11111111", "response does not echo the lab id")
}

func TestTenantContext_Scoped(t *testing.T) {
	lab := uuid.New()
	e := tenantEngine(t, &stubMemberships{rows: map[string]*entity.LabMembership{
		"u1/" + lab.String(): {SubjectID: "u1", LabID: lab, Role: entity.RoleTechnician},
	}})

	w := do(e, contextRequest(t, "u1", lab.String()))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "scoped", body["kind"])
	assert.Equal(t, lab.String(), body["lab"])
	assert.Equal(t, "technician", body["role"])
}

func TestTenantContext_UnscopedCases(t *testing.T) {
	e := tenantEngine(t, &stubMemberships{err: errors.New("must not be called")})

	for _, tc := range []struct{ subject, lab string }{
		{"", uuid.NewString()},
		{"u1", ""},
		{"u1", "not-a-uuid"},
	} {
		w := do(e, contextRequest(t, tc.subject, tc.lab))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "unscoped", decodeError(t, w)["kind"])
	}
}

func TestTenantContext_GlobalAdmin(t *testing.T) {
	e := tenantEngine(t, &stubMemberships{err: errors.New("must not be called")})

	w := do(e, contextRequest(t, adminSubject, uuid.NewString()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "global_admin", decodeError(t, w)["kind"])
}

func TestTenantContext_LookupFailureIs500(t *testing.T) {
	e := tenantEngine(t, &stubMemberships{err: errors.New("connection refused")})

	w := do(e, contextRequest(t, "u1", uuid.NewString()))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "InternalError", decodeError(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestTenantContext_CancelledRequestWritesNothing(t *testing.T) {
	e := tenantEngine(t, &stubMemberships{err: context.Canceled})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := contextRequest(t, "u1", uuid.NewString()).WithContext(ctx)
	w := do(e, req)
	assert.Empty(t, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	lab := uuid.New()
	store := &stubMemberships{rows: map[string]*entity.LabMembership{
		"viewer/" + lab.String(): {SubjectID: "viewer", LabID: lab, Role: entity.RoleViewer},
		"tech/" + lab.String():   {SubjectID: "tech", LabID: lab, Role: entity.RoleTechnician},
	}}
	e := tenantEngine(t, store, RequireLabScope(), RequireRole(entity.RoleTechnician))

	w := do(e, contextRequest(t, "viewer", lab.String()))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "InsufficientRole", decodeError(t, w)["error"])

	w = do(e, contextRequest(t, "tech", lab.String()))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(e, contextRequest(t, adminSubject, ""))
	assert.Equal(t, http.StatusOK, w.Code, "global admin passes role checks")

	w = do(e, contextRequest(t, "tech", ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "LabContextRequired", decodeError(t, w)["error"])
}

func TestRecovery(t *testing.T) {
	e := gin.New()
	e.Use(RequestID(), Recovery())
	e.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(e, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "InternalError", decodeError(t, w)["error"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	e := gin.New()
	e.Use(RequestID())
	e.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := do(e, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

type recordingTx struct {
	calls int
	err   error
}

func (r *recordingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return r.err
}

func TestDBTransaction(t *testing.T) {
	tx := &recordingTx{}
	e := gin.New()
	e.Use(DBTransaction(tx))
	e.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.POST("/w", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do(e, httptest.NewRequest(http.MethodGet, "/r", nil))
	assert.Equal(t, 0, tx.calls, "reads do not open a transaction")

	w := do(e, httptest.NewRequest(http.MethodPost, "/w", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, tx.calls)
}
