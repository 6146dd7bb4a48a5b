package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/cache"
	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/repository"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

const resourceAuth = "auth"

// AuthService coordinates registration, login and token lifecycle.
type AuthService struct {
	users       repository.UserRepository
	refresh     repository.RefreshTokenRepository
	tokenMgr    *auth.TokenManager
	revocations cache.RevocationStore
	audit       audit.Recorder
	logger      *zap.Logger
	bcryptCost  int
	openRoles   bool
	validate    *validator.Validate
	now         func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo             repository.UserRepository
	RefreshTokenRepo     repository.RefreshTokenRepository
	TokenManager         *auth.TokenManager
	Revocations          cache.RevocationStore
	Audit                audit.Recorder
	Logger               *zap.Logger
	BcryptCost           int
	OpenRoleRegistration bool
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		refresh:     deps.RefreshTokenRepo,
		tokenMgr:    deps.TokenManager,
		revocations: deps.Revocations,
		audit:       deps.Audit,
		logger:      logger,
		bcryptCost:  deps.BcryptCost,
		openRoles:   deps.OpenRoleRegistration,
		validate:    newValidator(),
		now:         time.Now,
	}
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username string      `json:"username" validate:"required,min=3,max=80"`
	Email    string      `json:"email" validate:"required,email,max=120"`
	Password string      `json:"password" validate:"required,min=6"`
	Role     domain.Role `json:"role" validate:"omitempty,role"`
}

// AuthTokens is the token pair handed to clients.
type AuthTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult bundles the authenticated user with fresh tokens.
type AuthResult struct {
	User   *domain.User
	Tokens AuthTokens
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, validationFailure(err)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleUser && !s.openRoles {
		s.recordAuth(ctx, "", "register", domain.AuditForbidden, "self-registration as "+string(role))
		return nil, apperrors.NewForbiddenWithDetails("self-registration is limited to the user role",
			map[string]any{"role": string(role)})
	}

	usernameTaken, emailTaken, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if usernameTaken || emailTaken {
		return nil, duplicateAccount(usernameTaken, emailTaken)
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("username or email already registered", nil)
		}
		return nil, apperrors.MapError(err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.recordAuth(ctx, user.ID, "register", domain.AuditSuccess, "registered as "+string(role))
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func duplicateAccount(usernameTaken, emailTaken bool) error {
	fields := map[string]string{}
	if usernameTaken {
		fields["username"] = "already taken"
	}
	if emailTaken {
		fields["email"] = "already registered"
	}
	return apperrors.NewConflict("username or email already registered", map[string]any{"fields": fields})
}

// Login authenticates by username and password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		fields := map[string]string{}
		if username == "" {
			fields["username"] = "is required"
		}
		if password == "" {
			fields["password"] = "is required"
		}
		return nil, apperrors.NewFieldValidationError(fields)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			auth.BurnCompare(password, s.bcryptCost)
			s.recordAuth(ctx, "", "login", domain.AuditForbidden, "unknown username "+username)
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordAuth(ctx, user.ID, "login", domain.AuditForbidden, "bad password")
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		s.recordAuth(ctx, user.ID, "login", domain.AuditForbidden, "account deactivated")
		return nil, apperrors.NewUnauthorized("account is deactivated")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.recordAuth(ctx, user.ID, "login", domain.AuditSuccess, "")
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a stored refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokenMgr.ParseToken(strings.TrimSpace(refreshToken), domain.TokenTypeRefresh)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid refresh token")
	}

	stored, err := s.refresh.GetByTokenID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("refresh token revoked")
		}
		return nil, apperrors.MapError(err)
	}
	if !stored.ExpiresAt.After(s.now()) || stored.UserID != claims.UserID() {
		return nil, apperrors.NewUnauthorized("refresh token expired")
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("account is deactivated")
	}

	access, err := s.tokenMgr.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Tokens: AuthTokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: stored.ExpiresAt,
	}}, nil
}

// Logout revokes the presented access token and every stored refresh
// token of the user.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal) error {
	if principal == nil || principal.Claims == nil || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, principal.Claims.ID, principal.Claims.Expiry()); err != nil {
			s.logger.Error("revoke access token", zap.String("user_id", principal.User.ID), zap.Error(err))
			return apperrors.NewInternalError(err)
		}
	}
	removed, err := s.refresh.DeleteByUser(ctx, principal.User.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Debug("logout", zap.String("user_id", principal.User.ID), zap.Int64("refresh_tokens_removed", removed))
	s.recordAuth(ctx, principal.User.ID, "logout", domain.AuditSuccess, "")
	return nil
}

// Me returns the caller and the capabilities of their role.
func (s *AuthService) Me(user *domain.User) (*domain.User, []rbac.Permission) {
	return user, rbac.Grants(user)
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (AuthTokens, error) {
	access, err := s.tokenMgr.GenerateAccessToken(user)
	if err != nil {
		return AuthTokens{}, apperrors.NewInternalError(err)
	}
	refresh, err := s.tokenMgr.GenerateRefreshToken(user)
	if err != nil {
		return AuthTokens{}, apperrors.NewInternalError(err)
	}
	if err := s.refresh.Create(ctx, &domain.RefreshToken{
		UserID:    user.ID,
		TokenID:   refresh.TokenID,
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return AuthTokens{}, apperrors.MapError(err)
	}
	return AuthTokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *AuthService) recordAuth(ctx context.Context, userID, action string, result domain.AuditResult, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceAuth,
		Result:       result,
		Details:      details,
	})
}
