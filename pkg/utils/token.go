package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const TokenIssuer = "postflow"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrSealedSecret = errors.New("cannot open sealed secret")
)

// ParseSessionToken checks an HS256 session token issued by the dashboard
// and returns its claims. Tokens without an expiry or a user id are rejected.
func ParseSessionToken(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	claims := &transfer.CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return claims, nil
}

// OpenSecret reverses the dashboard's sealing of platform access tokens:
// base64 of an AES-GCM nonce followed by the ciphertext.
func OpenSecret(sealed string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedSecret, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedSecret, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedSecret, err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: %d bytes is shorter than the nonce", ErrSealedSecret, len(data))
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedSecret, err)
	}
	return string(plaintext), nil
}
