package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

// User is a registered account. The password hash never leaves the package
// boundary in JSON.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

type RegisterRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

type LoginResponse struct {
	Message string          `json:"message"`
	Tokens  *auth.TokenPair `json:"tokens"`
	User    *User           `json:"user"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}
