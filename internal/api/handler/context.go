package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospicore/auth-system/internal/api/middleware"
)

// ctxClaims extracts the auth claims injected by the Auth middleware and
// performs a fast-fail check before any service call: both claims must be
// non-empty, since a token without a subject is structurally valid but
// operationally unusable.
func ctxClaims(c echo.Context) (accountID, role string, err error) {
	accountID, _ = c.Get(middleware.CtxAccountID).(string)
	role, _ = c.Get(middleware.CtxRole).(string)
	if accountID == "" || role == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return accountID, role, nil
}
