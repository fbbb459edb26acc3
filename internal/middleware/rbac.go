package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/libreta-api/internal/utils"
)

// Staff roles carried in the token. Admins pass every role check.
const (
	RoleAdmin       = "admin"
	RoleDirector    = "director"
	RoleCoordinator = "coordinator"
	RoleTeacher     = "teacher"
)

// RequireRole admits requests whose user_role local is one of roles. A request
// without any role is unauthenticated (401); a known role outside the set is
// forbidden (403).
func RequireRole(roles ...string) fiber.Handler {
	allowed := map[string]struct{}{RoleAdmin: {}}
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			return utils.SendErrorCode(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing role", nil)
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendErrorCode(c, fiber.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		}
		return c.Next()
	}
}
