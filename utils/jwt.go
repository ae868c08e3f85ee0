package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL lifetime of admin tokens
const TokenTTL = 24 * time.Hour

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
)

// SetJWTSecret installs the signing key (from config.Auth.JWTSecret)
func SetJWTSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(secret)
}

func currentSecret() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	return jwtSecret, nil
}

// NewSecret random hex secret for first start
func NewSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateJWT issues an admin token bound to the hub's device id
func GenerateJWT(deviceID string) (string, error) {
	secret, err := currentSecret()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"exp":       now.Add(TokenTTL).Unix(),
		"iat":       now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyJWT validates signature, algorithm and expiry; tokens without exp are rejected
func VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	secret, err := currentSecret()
	if err != nil {
		return nil, err
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
