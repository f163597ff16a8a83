package accounts

import "time"

// Role discriminates account kinds. One Account type and one store replace
// per-role collections; routes are gated on the role claim.
type Role string

const (
	RoleUser       Role = "user"
	RoleUniversity Role = "university"
	RoleAdmin      Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleUniversity, RoleAdmin:
		return true
	}
	return false
}

// Account is a login principal. Universities get one on approval; admins are
// seeded by the createadmin command.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
