package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/optional"
)

// Role is the closed set of principal roles. Policy code switches over it
// exhaustively; add a case there when adding a role here.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// User is a row of the `users` table and the principal of authenticated requests.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	Active       bool      `db:"is_active" json:"is_active"`
	Version      int64     `db:"version" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Patch is a partial update; only Set fields are applied.
type Patch struct {
	Username optional.Value[string] `json:"username"`
	Email    optional.Value[string] `json:"email"`
	Role     optional.Value[Role]   `json:"role"`
	Active   optional.Value[bool]   `json:"is_active"`
}

// Fields lists the column names the patch touches.
func (p Patch) Fields() []string {
	var out []string
	if p.Username.Set {
		out = append(out, "username")
	}
	if p.Email.Set {
		out = append(out, "email")
	}
	if p.Role.Set {
		out = append(out, "role")
	}
	if p.Active.Set {
		out = append(out, "is_active")
	}
	return out
}

type ListParams struct {
	Skip            int
	Limit           int
	IncludeInactive bool
}

type Page struct {
	Users   []*User `json:"users"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}
