package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

type stubUsers map[string]*domain.User

func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s *stubRevocations) Revoke(_ context.Context, id string, _ time.Time) error {
	s.revoked[id] = true
	return nil
}

func (s *stubRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return s.revoked[id], s.err
}

func newTestApp(mw *AuthMiddleware, extra ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	handlers := append([]fiber.Handler{mw.Handle}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.User.Username)
	})
	app.Get("/protected", handlers...)
	return app
}

func doGet(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 24*time.Hour)
	user := &domain.User{ID: "u-1", Role: domain.RoleManager}

	issued, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.TokenID)

	claims, err := tm.ParseToken(issued.Token, domain.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID())
	assert.Equal(t, domain.RoleManager, claims.Role)
	assert.Equal(t, issued.TokenID, claims.ID)
	assert.WithinDuration(t, issued.ExpiresAt, claims.Expiry(), time.Second)
}

func TestTokenManager_RejectsWrongType(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, 24*time.Hour)
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}

	refresh, err := tm.GenerateRefreshToken(user)
	require.NoError(t, err)

	_, err = tm.ParseToken(refresh.Token, domain.TokenTypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = tm.ParseToken(refresh.Token, domain.TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokenManager_RejectsExpiredAndForeignSignature(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute, time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	user := &domain.User{ID: "u-1", Role: domain.RoleUser}

	old, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	tm.now = time.Now
	_, err = tm.ParseToken(old.Token, domain.TokenTypeAccess)
	assert.Error(t, err)

	other := NewTokenManager("other-secret", time.Hour, time.Hour)
	foreign, err := other.GenerateAccessToken(user)
	require.NoError(t, err)
	_, err = tm.ParseToken(foreign.Token, domain.TokenTypeAccess)
	assert.Error(t, err)
}

func TestPassword_HashAndCompare(t *testing.T) {
	hash, err := HashPassword("s3cret!", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret!"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, time.Hour)
	active := &domain.User{ID: "u-1", Username: "alice", Role: domain.RoleUser, IsActive: true}
	inactive := &domain.User{ID: "u-2", Username: "bob", Role: domain.RoleUser, IsActive: false}
	users := stubUsers{"u-1": active, "u-2": inactive}
	revocations := &stubRevocations{revoked: map[string]bool{}}
	app := newTestApp(NewAuthMiddleware(tm, users, revocations, zap.NewNop()))

	good, err := tm.GenerateAccessToken(active)
	require.NoError(t, err)
	refresh, err := tm.GenerateRefreshToken(active)
	require.NoError(t, err)
	deactivated, err := tm.GenerateAccessToken(inactive)
	require.NoError(t, err)
	ghost, err := tm.GenerateAccessToken(&domain.User{ID: "u-404", Role: domain.RoleUser})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doGet(t, app, good.Token))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, "garbage"))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, refresh.Token))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, deactivated.Token))
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, ghost.Token))

	revocations.revoked[good.TokenID] = true
	assert.Equal(t, http.StatusUnauthorized, doGet(t, app, good.Token))
}

func TestAuthMiddleware_RevocationStoreDownFailsOpen(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, time.Hour)
	user := &domain.User{ID: "u-1", Username: "alice", Role: domain.RoleUser, IsActive: true}
	revocations := &stubRevocations{revoked: map[string]bool{}, err: errors.New("redis down")}
	app := newTestApp(NewAuthMiddleware(tm, stubUsers{"u-1": user}, revocations, zap.NewNop()))

	tok, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(t, app, tok.Token))
}

func TestRequirePermission(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, time.Hour)
	admin := &domain.User{ID: "a", Username: "admin", Role: domain.RoleAdmin, IsActive: true}
	viewer := &domain.User{ID: "v", Username: "viewer", Role: domain.RoleViewer, IsActive: true}
	app := newTestApp(NewAuthMiddleware(tm, stubUsers{"a": admin, "v": viewer}, nil, zap.NewNop()),
		RequirePermission(rbac.ManageUsers))

	adminTok, err := tm.GenerateAccessToken(admin)
	require.NoError(t, err)
	viewerTok, err := tm.GenerateAccessToken(viewer)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doGet(t, app, adminTok.Token))
	assert.Equal(t, http.StatusForbidden, doGet(t, app, viewerTok.Token))
}
