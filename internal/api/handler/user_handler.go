package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/content-platform/internal/api/metrics"
	"github.com/inkwell/content-platform/internal/core/domain"
	"github.com/inkwell/content-platform/internal/core/ports"
)

type UserHandler struct {
	userService ports.UserService
}

func NewUserHandler(userService ports.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// List returns a page of users, optionally filtered by a search term
// or role.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        page    query     int     false  "Page (1-based)"
// @Param        limit   query     int     false  "Page size (max 100)"
// @Param        search  query     string  false  "Substring match on username or email"
// @Param        role    query     string  false  "Filter by role"
// @Success      200     {object}  ports.ListUsersResult
// @Router       /users [get]
func (h *UserHandler) List(c echo.Context) error {
	var q listUsersQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid query"})
	}
	if err := c.Validate(&q); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	result, err := h.userService.List(c.Request().Context(), ports.ListUsersInput{
		Page:   q.Page,
		Limit:  q.Limit,
		Search: q.Search,
		Role:   domain.Role(q.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Profile returns the authenticated caller's own account.
//
// @Summary      Current user profile
// @Tags         users
// @Produce      json
// @Success      200  {object}  ports.UserView
// @Router       /users/profile [get]
func (h *UserHandler) Profile(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	view, err := h.userService.GetUser(c.Request().Context(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Get returns a single user by id.
//
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  ports.UserView
// @Failure      404  {object}  errorResponse
// @Router       /users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	view, err := h.userService.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Update applies a partial profile update. Owner or admin only; role
// changes require admin.
//
// @Summary      Update user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "User id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  ports.UserView
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /users/{id} [patch]
func (h *UserHandler) Update(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	patch := ports.UserPatch{
		Username: req.Username,
		Email:    req.Email,
		Title:    req.Title,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}

	view, err := h.userService.UpdateProfile(c.Request().Context(), c.Param("id"), principal, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ChangePassword replaces the account password after verifying the
// current one. Owner or admin only.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Param        id    path  string                 true  "User id"
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /users/{id}/password [post]
func (h *UserHandler) ChangePassword(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ok, err := h.userService.ChangePassword(c.Request().Context(), c.Param("id"), principal, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	if !ok {
		// Wrong current password is an expected outcome, not a failure.
		metrics.PasswordChangesTotal.WithLabelValues("wrong_password").Inc()
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "current password is incorrect"})
	}

	metrics.PasswordChangesTotal.WithLabelValues("success").Inc()
	return c.NoContent(http.StatusNoContent)
}

// Delete soft-deletes a user. Admin only.
//
// @Summary      Deactivate user
// @Tags         users
// @Param        id  path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	if err := h.userService.Remove(c.Request().Context(), c.Param("id"), principal); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Restore reactivates a soft-deleted user. Admin only.
//
// @Summary      Restore user
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  ports.UserView
// @Failure      404  {object}  errorResponse
// @Router       /users/{id}/restore [post]
func (h *UserHandler) Restore(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	view, err := h.userService.Restore(c.Request().Context(), c.Param("id"), principal)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// BulkUpdateRole assigns a role to a batch of users. Admin only.
//
// @Summary      Bulk role update
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      bulkRoleRequest  true  "User ids and target role"
// @Success      200   {object}  bulkRoleResponse
// @Failure      403   {object}  errorResponse
// @Router       /users/roles [post]
func (h *UserHandler) BulkUpdateRole(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req bulkRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	modified, err := h.userService.BulkUpdateRole(c.Request().Context(), principal, req.UserIDs, domain.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bulkRoleResponse{Modified: modified})
}

// Stats returns the count of users grouped by role and refreshes the
// users_by_role gauge on the way out.
//
// @Summary      User statistics by role
// @Tags         users
// @Produce      json
// @Success      200  {object}  roleStatsResponse
// @Failure      403  {object}  errorResponse
// @Router       /users/stats [get]
func (h *UserHandler) Stats(c echo.Context) error {
	principal, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	stats, err := h.userService.StatsByRole(c.Request().Context(), principal)
	if err != nil {
		return err
	}

	for _, rc := range stats {
		metrics.UsersByRole.WithLabelValues(string(rc.Role)).Set(float64(rc.Count))
	}
	return c.JSON(http.StatusOK, roleStatsResponse{Stats: stats})
}
