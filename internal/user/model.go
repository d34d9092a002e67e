package user

import "time"

// Roles recognized by the school administration.
const (
	RoleDocente     = "docente"
	RoleSecretaria  = "secretaria"
	RoleResponsable = "responsable"
	RoleAdmin       = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleDocente, RoleSecretaria, RoleResponsable, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Role     string    `json:"role"`
	Avatar   string    `json:"avatar,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
