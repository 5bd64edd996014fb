package staff

import (
	"time"

	"taxi-service/internal/domain"
)

// Member is a back-office account.
type Member struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

// CreateRequest is the body for POST /staff.
type CreateRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// LoginRequest is the body for POST /staff/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned on login.
type AuthResponse struct {
	Token  string  `json:"token"`
	Member *Member `json:"member"`
}
