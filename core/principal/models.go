package principal

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/madrasa/backend/core"
)

type Role string

// Roles
const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
	RoleAdmin     Role = "ADMIN"
)

var AllRoles = []Role{RoleStudent, RoleProfessor, RoleAdmin}

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal is the acting user, as resolved by the caller's authentication layer.
type Principal struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (p Principal) IsAdmin() bool     { return p.Role == RoleAdmin }
func (p Principal) IsProfessor() bool { return p.Role == RoleProfessor }
func (p Principal) IsStudent() bool   { return p.Role == RoleStudent }

// NewPrincipal contains information needed to create a new Principal.
type NewPrincipal struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,oneof=STUDENT PROFESSOR ADMIN"`
}

func (np *NewPrincipal) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Role = Role(core.CleanString(string(np.Role)))
	return validate.Struct(np)
}
