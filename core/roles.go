package core

import "strings"

// Role is the closed set of account roles known to this deployment.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether the role is one of the predefined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes a role string supplied at the boundary (login payload,
// token claim, rules file). Matching is case-insensitive; everywhere past this
// point roles are compared as canonical lowercase values.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.IsValid()
}
