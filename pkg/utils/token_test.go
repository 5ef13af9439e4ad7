package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims transfer.CustomClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func sessionClaims(userID string, ttl time.Duration) transfer.CustomClaims {
	return transfer.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestParseSessionToken(t *testing.T) {
	secret := []byte("session-secret")

	claims, err := ParseSessionToken(string(secret), sign(t, jwt.SigningMethodHS256, secret, sessionClaims("42", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)

	noExpiry := sessionClaims("42", time.Hour)
	noExpiry.ExpiresAt = nil
	otherIssuer := sessionClaims("42", time.Hour)
	otherIssuer.Issuer = "someone-else"

	rejected := map[string]string{
		"expired":      sign(t, jwt.SigningMethodHS256, secret, sessionClaims("42", -time.Minute)),
		"wrong key":    sign(t, jwt.SigningMethodHS256, []byte("other"), sessionClaims("42", time.Hour)),
		"hs512":        sign(t, jwt.SigningMethodHS512, secret, sessionClaims("42", time.Hour)),
		"no expiry":    sign(t, jwt.SigningMethodHS256, secret, noExpiry),
		"other issuer": sign(t, jwt.SigningMethodHS256, secret, otherIssuer),
		"no user":      sign(t, jwt.SigningMethodHS256, secret, sessionClaims("", time.Hour)),
		"garbage":      "not.a.token",
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSessionToken(string(secret), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func seal(t *testing.T, plaintext string, key []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil))
}

func TestOpenSecret(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	got, err := OpenSecret(seal(t, "page-token", key), key)
	require.NoError(t, err)
	assert.Equal(t, "page-token", got)

	_, err = OpenSecret(seal(t, "page-token", key), []byte("fedcba9876543210fedcba9876543210"))
	assert.ErrorIs(t, err, ErrSealedSecret)

	_, err = OpenSecret("%%%", key)
	assert.ErrorIs(t, err, ErrSealedSecret)

	_, err = OpenSecret(base64.StdEncoding.EncodeToString([]byte("short")), key)
	assert.ErrorIs(t, err, ErrSealedSecret)

	_, err = OpenSecret(seal(t, "x", key), []byte("short-key"))
	assert.ErrorIs(t, err, ErrSealedSecret)
}
