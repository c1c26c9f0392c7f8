package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *TokenService {
	return &TokenService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        "test-secret",
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService()

	pair, err := svc.GenerateTokenPair("user-1", "sess-1", []string{"users:read", "data:export"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := svc.VerifyJWTToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.True(t, claims.HasScope("users:read"))
	assert.True(t, claims.HasScope("data:export"))
	assert.False(t, claims.HasScope("admin"))
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestTokenWrongSecretRejected(t *testing.T) {
	svc := newTestTokenService()
	other := &TokenService{AccessTokenDuration: time.Hour, jwtSecretKey: "other-secret"}

	token, err := svc.ToJWT("user-1", "sess-1", nil)
	require.NoError(t, err)

	_, err = other.VerifyJWTToken(token)
	assert.Error(t, err)
}

func TestTokenExpiredRejected(t *testing.T) {
	svc := &TokenService{AccessTokenDuration: -time.Minute, jwtSecretKey: "test-secret"}

	token, err := svc.ToJWT("user-1", "sess-1", nil)
	require.NoError(t, err)

	_, err = svc.VerifyJWTToken(token)
	assert.Error(t, err)
}

func TestTokenGarbageRejected(t *testing.T) {
	svc := newTestTokenService()

	_, err := svc.VerifyJWTToken("not.a.token")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)

	_, err = svc.ExtractTokenFromHeader("Basic dXNlcjpwYXNz")
	assert.Error(t, err)
}
