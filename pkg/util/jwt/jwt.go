package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer             = "support_chat"
	adminAccessSubject = "admin_access"
)

// JWTConfig holds the signing settings.
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// set by Init
var jwtConfig *JWTConfig

// Init configures signing. Admin tokens are minted by the site's login service with the
// same secret; this server only needs GenerateAccessToken for tooling and tests.
func Init(secret string, accessExpiryMinutes int) {
	jwtConfig = &JWTConfig{
		Secret:            secret,
		AccessTokenExpiry: time.Duration(accessExpiryMinutes) * time.Minute,
	}
}

// Claims are the admin token claims.
type Claims struct {
	AdminID string `json:"admin_id"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an admin access token.
func GenerateAccessToken(adminID string) (string, error) {
	if jwtConfig == nil {
		return "", errors.New("jwt not initialized")
	}
	now := time.Now()
	claims := Claims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtConfig.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   adminAccessSubject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtConfig.Secret))
}

// ParseToken verifies signature, expiry and subject of an admin token.
func ParseToken(tokenString string) (*Claims, error) {
	if jwtConfig == nil {
		return nil, errors.New("jwt not initialized")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtConfig.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject != adminAccessSubject {
		return nil, jwt.ErrTokenInvalidSubject
	}
	return claims, nil
}
