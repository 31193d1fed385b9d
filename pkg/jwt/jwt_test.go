package jwt

import (
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	tok, exp, err := GenerateToken("s3cret", 42, "client", TypeAccess, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := ParseToken("s3cret", tok, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "client", claims.Role)
}

func TestParseRejectsWrongType(t *testing.T) {
	tok, _, err := GenerateToken("s3cret", 1, "admin", TypeRefresh, time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", tok, TypeAccess)
	assert.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, _, err := GenerateToken("s3cret", 1, "admin", TypeAccess, time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("other", tok, TypeAccess)
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	tok, _, err := GenerateToken("s3cret", 1, "admin", TypeAccess, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", tok, TypeAccess)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gojwt.ErrTokenExpired))
}
