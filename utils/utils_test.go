package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("monstera")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("monstera", hash))
	assert.False(t, VerifyPassword("pothos", hash))
	assert.False(t, VerifyPassword("monstera", ""))
}

func TestJWT(t *testing.T) {
	SetJWTSecret("")
	_, err := GenerateJWT("hub")
	assert.Error(t, err)

	SetJWTSecret(NewSecret())
	tok, err := GenerateJWT("hub")
	require.NoError(t, err)

	claims, err := VerifyJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "hub", claims["device_id"])

	_, err = VerifyJWT(tok + "x")
	assert.Error(t, err)

	SetJWTSecret("another")
	_, err = VerifyJWT(tok)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	SetJWTSecret("s3cret")
	claims := jwt.MapClaims{"device_id": "hub", "exp": time.Now().Add(-time.Minute).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = VerifyJWT(tok)
	assert.Error(t, err)
}

func TestJWTWithoutExpiry(t *testing.T) {
	SetJWTSecret("s3cret")
	claims := jwt.MapClaims{"device_id": "hub", "iat": time.Now().Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = VerifyJWT(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}

func TestNewSecretIsRandom(t *testing.T) {
	a, b := NewSecret(), NewSecret()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
