package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// The admin-group identifier the backend issues in role claims.
const adminRole = "quantri"

// RBAC gates a route on the raw role claim. The admin group passes every
// check implicitly, mirroring the client's permission model.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if role == adminRole {
				return next(c)
			}
			if _, ok := allowed[role]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
