// Package registry provides the in-memory user store the tool surface
// manipulates. It is the demo domain collaborator; durability is out of
// scope.
package registry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the access role assigned to a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is one registry entry.
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// CreateUserInput carries validated input for Create.
type CreateUserInput struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UpdateUserInput carries validated input for Update. Nil fields are left
// unchanged.
type UpdateUserInput struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Role  *string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

// GenerateUserID creates a unique user identifier.
func GenerateUserID() string {
	u := uuid.New().String()
	return "user_" + strings.ReplaceAll(u[:8], "-", "")
}
