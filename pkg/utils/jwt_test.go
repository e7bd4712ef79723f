package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestExtractClaimsPrefersAppMetadataRole(t *testing.T) {
	SetSecret("test-secret")
	tok := signed(t, "test-secret", jwt.MapClaims{
		"sub":          "a7c6f7a4-1111-4c1b-9d51-6f7d2b1c0e01",
		"email":        "owner@teahouse.tw",
		"role":         "authenticated",
		"app_metadata": map[string]any{"role": "admin"},
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	claims, err := ExtractClaims(r)
	require.NoError(t, err)
	assert.Equal(t, "a7c6f7a4-1111-4c1b-9d51-6f7d2b1c0e01", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateJWTRejectsWrongSecretAndMissingExpiry(t *testing.T) {
	SetSecret("test-secret")

	_, err := ValidateJWT(signed(t, "other", jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()}))
	assert.Error(t, err)

	_, err = ValidateJWT(signed(t, "test-secret", jwt.MapClaims{"sub": "x"}))
	assert.Error(t, err)
}

func TestTokenFromCookie(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", "accessToken=abc")
	assert.Equal(t, "abc", TokenFromRequest(r))
}
