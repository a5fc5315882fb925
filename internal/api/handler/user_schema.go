package handler

import "github.com/inkwell/content-platform/internal/core/ports"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=4,max=20"`
	Email    *string `json:"email"    validate:"omitempty,email"`
	Title    *string `json:"title"    validate:"omitempty,max=100"`
	Role     *string `json:"role"     validate:"omitempty,oneof=admin author reader"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,min=6"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type listUsersQuery struct {
	Page   int    `query:"page"   validate:"omitempty,min=1"`
	Limit  int    `query:"limit"  validate:"omitempty,min=1,max=100"`
	Search string `query:"search" validate:"omitempty,max=100"`
	Role   string `query:"role"   validate:"omitempty,oneof=admin author reader"`
}

type bulkRoleRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=500,dive,required"`
	Role    string   `json:"role"     validate:"required,oneof=admin author reader"`
}

type bulkRoleResponse struct {
	Modified int64 `json:"modified"`
}

type roleStatsResponse struct {
	Stats []ports.RoleCount `json:"stats"`
}
