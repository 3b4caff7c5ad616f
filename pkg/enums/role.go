package enums

import "fmt"

// Role identifies what a caller is allowed to do.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
)

var validRoles = []Role{
	RoleAnonymous,
	RoleCustomer,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is recognized.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// RoleFromAdminFlag maps the stored users.is_admin flag to a role.
func RoleFromAdminFlag(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
