package handler

import "github.com/inkwell/content-platform/internal/core/ports"

type registerRequest struct {
	Username string `json:"username" validate:"required,min=4,max=20"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role"     validate:"required,oneof=admin author reader"`
	Title    string `json:"title"    validate:"omitempty,max=100"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type authResponse struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         *ports.UserView `json:"user,omitempty"`
}
