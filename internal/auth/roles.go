package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/casetrack/casetrack/internal/rbac"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

// RequirePermission lets the request through when the caller's role holds
// at least one of perms. Resource scope is checked later by the services.
func RequirePermission(perms ...rbac.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		for _, p := range perms {
			if rbac.HasPermission(principal.User, p, nil) {
				return c.Next()
			}
		}
		return apperrors.NewForbiddenWithDetails("insufficient permissions", map[string]any{
			"required": rbac.Strings(perms),
		})
	}
}
