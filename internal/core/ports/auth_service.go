package ports

import "context"

// AuthResult is returned on successful authentication.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *UserView
}

// AuthService authenticates credentials and issues tokens. Unknown
// usernames and wrong passwords are deliberately indistinguishable to
// the caller.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	// Refresh exchanges a previously issued refresh token for a new
	// token pair. The stored refresh token is overwritten wholesale.
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
}
