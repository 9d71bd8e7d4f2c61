package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"syncServer/backend/internal/errs"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	token, expiresAt, err := SignAccessToken(42, "alice", "editor", time.Hour)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	id, err := VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 42, DisplayName: "alice", Role: "editor"}, id)
}

func TestVerifyExpiredToken(t *testing.T) {
	token, _, err := SignAccessToken(42, "alice", "editor", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyAccessToken(token)
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeUnauthenticated))
}

func TestVerifyGarbage(t *testing.T) {
	_, err := VerifyAccessToken("not.a.token")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeUnauthenticated))
}

func TestVerifyRejectsNonAccessType(t *testing.T) {
	claims := &Claims{
		UserID: 42,
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	require.NoError(t, err)

	_, err = VerifyAccessToken(token)
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeUnauthenticated))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	token, _, err := SignAccessToken(42, "alice", "editor", time.Hour)
	require.NoError(t, err)

	_, err = VerifyAccessToken(token + "x")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeUnauthenticated))
}
