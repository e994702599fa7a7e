package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes the role claim, which older clients send capitalized.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleTutor, RoleStudent, RoleAdmin:
		return r, true
	}
	return "", false
}

type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Identity is the authenticated caller as supplied by the auth layer.
type Identity struct {
	CallerID uuid.UUID
	Role     Role
}
