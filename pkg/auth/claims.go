package auth

import (
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID int64
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID int64      `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the identity passed to services.
func (c *AccessTokenClaims) Actor() Actor {
	if c == nil {
		return Anonymous()
	}
	return NewActor(c.UserID, c.Role)
}
