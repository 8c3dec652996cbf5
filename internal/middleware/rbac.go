package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/studyquest-api/internal/utils"
)

// Roles carried in access tokens.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleStudent   = "student"
)

// StaffRoles may manage published content.
var StaffRoles = []string{RoleAdmin, RoleModerator}

// RequireRole lets the request through only when the caller's role is one
// of roles. Route it behind WithAuth so anonymous callers get a 401 first.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleName(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalUserRole).(string)
		if _, ok := allowed[normalizeRoleName(role)]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

func isStaffRole(role string) bool {
	role = normalizeRoleName(role)
	for _, staff := range StaffRoles {
		if role == staff {
			return true
		}
	}
	return false
}

func normalizeRoleName(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
