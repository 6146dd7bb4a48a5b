package dto

import (
	"time"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/service"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// ToInput converts the request into service input.
func (r RegisterRequest) ToInput() service.RegisterInput {
	return service.RegisterInput{
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
		Role:     r.Role,
	}
}

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token in the body. The token may also
// be sent as a bearer header.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// UserResponses maps a slice of users.
func UserResponses(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}

// AssigneeResponse is the reduced listing used to pick an assignee.
type AssigneeResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AssigneeResponses maps users to assignee entries.
func AssigneeResponses(users []domain.User) []AssigneeResponse {
	out := make([]AssigneeResponse, 0, len(users))
	for _, u := range users {
		out = append(out, AssigneeResponse{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	return out
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Message          string       `json:"message,omitempty"`
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token,omitempty"`
	TokenType        string       `json:"token_type"`
	ExpiresAt        time.Time    `json:"expires_at"`
	RefreshExpiresAt *time.Time   `json:"refresh_expires_at,omitempty"`
}

// NewAuthResponse maps an auth result.
func NewAuthResponse(message string, res *service.AuthResult) AuthResponse {
	resp := AuthResponse{
		Message:      message,
		User:         NewUserResponse(res.User),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    res.Tokens.AccessExpiresAt,
	}
	if !res.Tokens.RefreshExpiresAt.IsZero() {
		exp := res.Tokens.RefreshExpiresAt
		resp.RefreshExpiresAt = &exp
	}
	return resp
}

// MeResponse describes the caller.
type MeResponse struct {
	User        UserResponse `json:"user"`
	Permissions []string     `json:"permissions"`
}

// NewMeResponse maps the caller and their grants.
func NewMeResponse(u *domain.User, perms []rbac.Permission) MeResponse {
	return MeResponse{User: NewUserResponse(u), Permissions: rbac.Strings(perms)}
}
