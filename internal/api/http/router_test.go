package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/api/http/handlers"
	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/cache"
	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/events"
	"github.com/casetrack/casetrack/internal/observability"
	"github.com/casetrack/casetrack/internal/repository/memory"
	"github.com/casetrack/casetrack/internal/service"
)

type testServer struct {
	app    *fiber.App
	store  *memory.Store
	tokens *auth.TokenManager
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, limiter *IPRateLimiter, postgres, redis handlers.Pinger) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.NewStore()
	revocations := cache.NewMemoryRevocationStore()
	tokens := auth.NewTokenManager("router-test", time.Hour, 24*time.Hour)
	recorder := audit.NewRecorder(store.Audit, logger)

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:         store.Users,
		RefreshTokenRepo: store.RefreshTokens,
		TokenManager:     tokens,
		Revocations:      revocations,
		Audit:            recorder,
		Logger:           logger,
		BcryptCost:       4,
	})
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:   store.Cases,
		UserRepo:   store.Users,
		TxRunner:   store.Tx,
		Audit:      recorder,
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Metrics:    metrics,
		Logger:     logger,
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:  store.Users,
		AuditRepo: store.Audit,
		Audit:     recorder,
	})

	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, MiddlewareConfig{Logger: logger, Metrics: metrics, Timeout: 5 * time.Second})
	app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("casetrack", "test", postgres, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Cases:          handlers.NewCasesHandler(caseService),
		Users:          handlers.NewUsersHandler(userService, caseService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users, revocations, logger),
		AuthLimiter:    limiter,
		MetricsHandler: metrics.Handler(),
	})
	return &testServer{app: app, store: store, tokens: tokens}
}

// seed stores an account directly and returns a bearer token for it.
func (s *testServer) seed(t *testing.T, username string, role domain.Role) (*domain.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("secret1", 4)
	require.NoError(t, err)
	u := &domain.User{Username: username, Email: username + "@example.com", PasswordHash: hash, Role: role, IsActive: true}
	require.NoError(t, s.store.Users.Create(context.Background(), u))
	issued, err := s.tokens.GenerateAccessToken(u)
	require.NoError(t, err)
	return u, issued.Token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func requireEnvelope(t *testing.T, body map[string]any, status int, code string) {
	t.Helper()
	assert.Equal(t, http.StatusText(status), body["error"])
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["message"])
	assert.IsType(t, map[string]any{}, body["details"])
}

func TestHealthEndpoints(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	srv := newTestServer(t, nil, ok, ok)

	status, body := srv.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "Case Management API is running", body["message"])

	status, body = srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestReady_DependencyDown(t *testing.T) {
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	srv := newTestServer(t, nil, down, nil)

	status, body := srv.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	requireEnvelope(t, body, status, "DEPENDENCY_UNAVAILABLE")
	details := body["details"].(map[string]any)
	assert.Equal(t, "connection refused", details["postgres"])
	assert.Equal(t, "not configured", details["redis"])
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	status, body := srv.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	requireEnvelope(t, body, status, "NOT_FOUND")

	status, body = srv.do(t, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	requireEnvelope(t, body, status, "INTERNAL_ERROR")

	status, body = srv.do(t, http.MethodGet, "/api/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	requireEnvelope(t, body, status, "UNAUTHORIZED")

	_, viewer := srv.seed(t, "vera", domain.RoleViewer)
	status, body = srv.do(t, http.MethodPost, "/api/cases", viewer, map[string]any{"title": "nope"})
	assert.Equal(t, http.StatusForbidden, status)
	requireEnvelope(t, body, status, "FORBIDDEN")

	status, body = srv.do(t, http.MethodGet, "/api/admin/users", viewer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	requireEnvelope(t, body, status, "FORBIDDEN")
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	status, body := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "alice", "email": "alice@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "user registered", body["message"])
	assert.Equal(t, "Bearer", body["token_type"])

	status, body = srv.do(t, http.MethodPost, "/api/auth/register", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	requireEnvelope(t, body, status, "VALIDATION_FAILED")

	status, body = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "login successful", body["message"])
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	status, body = srv.do(t, http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])
	assert.NotEmpty(t, body["permissions"])

	status, body = srv.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["access_token"])

	status, _ = srv.do(t, http.MethodPost, "/api/auth/refresh", refresh, nil)
	assert.Equal(t, http.StatusOK, status, "refresh token accepted from the bearer header")

	status, _ = srv.do(t, http.MethodPost, "/api/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/auth/me", access, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token has been revoked", body["message"])
}

func TestCaseLifecycle(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	owner, ownerToken := srv.seed(t, "owen", domain.RoleUser)
	assignee, assigneeToken := srv.seed(t, "ada", domain.RoleUser)
	_, strangerToken := srv.seed(t, "sam", domain.RoleUser)
	_, managerToken := srv.seed(t, "mia", domain.RoleManager)
	_, adminToken := srv.seed(t, "root", domain.RoleAdmin)
	due := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")

	status, body := srv.do(t, http.MethodPost, "/api/cases", ownerToken, map[string]any{
		"title": "Broken printer", "priority": "high", "due_date": due, "assigned_to": assignee.ID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	created := body["data"].(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "open", created["status"])
	assert.Equal(t, owner.ID, created["created_by"])
	assert.Equal(t, owner.ID, created["assigned_to"], "users without assign rights get the case themselves")
	assert.Equal(t, due+"T00:00:00Z", created["due_date"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, ownerToken, map[string]any{"assigned_to": assignee.ID})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, []any{"assigned_to"}, body["details"].(map[string]any)["forbidden_fields"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, managerToken, map[string]any{"assigned_to": assignee.ID})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, assignee.ID, body["data"].(map[string]any)["assigned_to"])

	status, body = srv.do(t, http.MethodGet, "/api/cases/"+id, assigneeToken, nil)
	require.Equal(t, http.StatusOK, status)
	access := body["access"].(map[string]any)
	assert.Equal(t, true, access["can_update_status"])
	assert.Equal(t, []any{"status"}, access["editable_fields"])
	assert.Equal(t, []any{"open", "in_progress"}, access["valid_transitions"])

	status, body = srv.do(t, http.MethodGet, "/api/cases/"+id, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	requireEnvelope(t, body, status, "FORBIDDEN")

	status, body = srv.do(t, http.MethodGet, "/api/cases", strangerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"])
	assert.EqualValues(t, 0, body["pagination"].(map[string]any)["total"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, assigneeToken, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, []any{"title"}, body["details"].(map[string]any)["forbidden_fields"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, assigneeToken, map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, status)
	requireEnvelope(t, body, status, "INVALID_TRANSITION")

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, assigneeToken, map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "in_progress", body["data"].(map[string]any)["status"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, ownerToken, map[string]any{"due_date": nil, "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []any{"colour"}, body["details"].(map[string]any)["unknown_fields"])

	status, body = srv.do(t, http.MethodPatch, "/api/cases/"+id, ownerToken, map[string]any{"due_date": nil})
	require.Equal(t, http.StatusOK, status, body)
	assert.Nil(t, body["data"].(map[string]any)["due_date"])

	status, body = srv.do(t, http.MethodGet, "/api/cases?status=in_progress&per_page=5", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 1)
	assert.EqualValues(t, 5, body["pagination"].(map[string]any)["per_page"])

	status, _ = srv.do(t, http.MethodDelete, "/api/cases/"+id, assigneeToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = srv.do(t, http.MethodDelete, "/api/cases/"+id, ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "case deleted", body["message"])

	status, body = srv.do(t, http.MethodGet, "/api/cases/"+id, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	requireEnvelope(t, body, status, "NOT_FOUND")

	status, body = srv.do(t, http.MethodGet, "/api/admin/cases", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"], "deleted cases are hidden unless asked for")

	status, body = srv.do(t, http.MethodGet, "/api/admin/cases?is_active=false", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["items"], 1)

	status, body = srv.do(t, http.MethodGet, "/api/admin/audit-logs?action=delete_case", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["items"])
}

func TestAuditEntriesSurviveLaterRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	_, token := srv.seed(t, "nora", domain.RoleUser)

	get := func(id, agent string) {
		req := httptest.NewRequest(http.MethodGet, "/api/cases/"+id, nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		req.Header.Set(fiber.HeaderUserAgent, agent)
		resp, err := srv.app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	get("first-missing-case-id", "agent-first")
	for i := 0; i < 50; i++ {
		get(fmt.Sprintf("other-%02d-xxxxxxxxxxxxxxx", i), fmt.Sprintf("agent-%02d-yyyyy", i))
	}

	entries := srv.store.Audit.Entries()
	require.Len(t, entries, 51)
	first := entries[0]
	require.NotNil(t, first.ResourceID)
	assert.Equal(t, "first-missing-case-id", *first.ResourceID)
	assert.Equal(t, "agent-first", first.UserAgent)
}

func TestUsersEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	user, userToken := srv.seed(t, "uma", domain.RoleUser)
	_, adminToken := srv.seed(t, "root", domain.RoleAdmin)

	status, body := srv.do(t, http.MethodGet, "/api/users", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].(map[string]any)["id"])

	status, body = srv.do(t, http.MethodGet, "/api/admin/permissions/"+user.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, _ = srv.do(t, http.MethodDelete, "/api/admin/users/"+user.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = srv.do(t, http.MethodGet, "/api/users", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "account is deactivated", body["message"])
}

func TestAuthRateLimit(t *testing.T) {
	srv := newTestServer(t, NewIPRateLimiter(0.001, 2), nil, nil)
	creds := map[string]any{"username": "ghost", "password": "nope"}

	for i := 0; i < 2; i++ {
		status, _ := srv.do(t, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := srv.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	requireEnvelope(t, body, status, "TOO_MANY_REQUESTS")
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(limiterIdleTTL + time.Minute)
	l.Allow("10.0.0.3")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.clients, 1, "idle clients are swept")
}
