package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"syncServer/backend/internal/errs"
)

// Identity is what a verified token yields. It is attached to a connection
// once at handshake and never changes afterwards.
type Identity struct {
	UserID      uint64
	DisplayName string
	Role        string
}

type Claims struct {
	UserID      uint64 `json:"sub"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	Type        string `json:"typ"`
	jwt.RegisteredClaims
}

func getSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}
	return []byte(secret)
}

func SignAccessToken(userID uint64, displayName, role string, ttl time.Duration) (string, time.Time, error) {
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		Type:        "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(ttl), nil
}

// VerifyAccessToken parses and validates a bearer token and returns the
// identity it carries. Any failure is an UNAUTHENTICATED error.
func VerifyAccessToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return getSecret(), nil
	})
	if err != nil {
		return Identity{}, errs.Wrap(errs.CodeUnauthenticated, "invalid token", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errs.New(errs.CodeUnauthenticated, "invalid token claims")
	}
	if claims.Type != "" && claims.Type != "access" {
		return Identity{}, errs.New(errs.CodeUnauthenticated, "access token required")
	}
	return Identity{UserID: claims.UserID, DisplayName: claims.DisplayName, Role: claims.Role}, nil
}
