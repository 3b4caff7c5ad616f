package auth

import "github.com/angelmondragon/ohya-backend/pkg/enums"

// Actor is the resolved caller identity handed to services. The zero value is
// an anonymous caller.
type Actor struct {
	UserID int64
	Role   enums.Role
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Actor {
	return Actor{Role: enums.RoleAnonymous}
}

// NewActor builds an authenticated identity.
func NewActor(userID int64, role enums.Role) Actor {
	return Actor{UserID: userID, Role: role}
}

// IsAuthenticated reports whether the caller is a known user.
func (a Actor) IsAuthenticated() bool {
	if a.UserID <= 0 {
		return false
	}
	return a.Role == enums.RoleCustomer || a.Role == enums.RoleAdmin
}

// IsAdmin reports whether the caller may use admin operations.
func (a Actor) IsAdmin() bool {
	return a.IsAuthenticated() && a.Role == enums.RoleAdmin
}
