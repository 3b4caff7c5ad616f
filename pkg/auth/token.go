package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// clockLeeway absorbs small skew between the API and browser clocks.
const clockLeeway = 30 * time.Second

var (
	ErrInvalidClaims = errors.New("token claims are inconsistent")
	ErrSecretMissing = errors.New("jwt secret is required")
)

// AccessTokenTTL is the lifetime of a freshly minted access token.
func AccessTokenTTL(cfg config.JWTConfig) time.Duration {
	return time.Duration(cfg.ExpirationMinutes) * time.Minute
}

// MintAccessToken issues a signed JWT for a customer or admin.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretMissing
	case cfg.Issuer == "":
		return "", fmt.Errorf("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	case payload.UserID <= 0:
		return "", fmt.Errorf("user id is required")
	case payload.Role != enums.RoleCustomer && payload.Role != enums.RoleAdmin:
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   strconv.FormatInt(payload.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL(cfg))),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates signature, issuer and expiry and returns the
// typed claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parse(cfg, tokenString, true)
}

// ParseAccessTokenAllowExpired checks signature and issuer but not exp/nbf,
// so refresh and logout can still read the session id of a stale token.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parse(cfg, tokenString, false)
}

func parse(cfg config.JWTConfig, tokenString string, checkExpiry bool) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwtSigningMethod.Alg()})}
	if checkExpiry {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer), jwt.WithLeeway(clockLeeway), jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwtSigningMethod {
			return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	// issuer is part of claims validation, which the allow-expired path skips
	if claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidClaims, claims.Issuer)
	}
	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, fmt.Errorf("%w: subject does not match user", ErrInvalidClaims)
	}
	return claims, nil
}
