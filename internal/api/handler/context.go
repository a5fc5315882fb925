package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/content-platform/internal/core/domain"
)

// ctxPrincipal extracts the authenticated caller injected by the Auth
// middleware. Both the user id and a valid role must be present before
// any service call is made.
func ctxPrincipal(c echo.Context) (domain.Principal, error) {
	id, _ := c.Get("user_id").(string)
	role, _ := c.Get("role").(string)
	if id == "" || !domain.Role(role).Valid() {
		return domain.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	return domain.Principal{ID: id, Role: domain.Role(role)}, nil
}
