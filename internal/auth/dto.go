package auth

import "github.com/angelmondragon/ohya-backend/internal/users"

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the self-service signup payload. Accounts created this
// way are always customers.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
	Name     string  `json:"name" validate:"required,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// RefreshRequest pairs the (possibly expired) access token with its refresh token.
type RefreshRequest struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// TokenResponse contains the tokens and user produced by login, register or refresh.
type TokenResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresIn    int            `json:"expiresIn"`
	User         *users.UserDTO `json:"user"`
}
