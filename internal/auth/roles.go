package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/campusdesk/appeal-service/pkg/util/errorutil"
)

// RequireStaff ensures the principal is an admin or superadmin.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.User.Role.IsStaff() {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}
