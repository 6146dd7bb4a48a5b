package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/domain"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

func currentPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, err := currentPrincipal(c)
	if err != nil {
		return nil, err
	}
	return principal.User, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return apperrors.NewValidationError("no data provided", nil)
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid JSON payload", nil)
	}
	return nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// parseBool returns nil for an absent or unrecognised value.
func parseBool(val string) *bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes":
		b := true
		return &b
	case "false", "0", "no":
		b := false
		return &b
	}
	return nil
}
