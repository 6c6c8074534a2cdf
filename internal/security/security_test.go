package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("correct horse", fastParams)
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2i$v=19$t=1,m=8,p=1$c2FsdA$a2V5", "$argon2id$v=19$t=x$c2FsdA$a2V5"} {
		_, err := VerifyPassword("pw", []byte(h))
		assert.ErrorIs(t, err, ErrMalformedHash, h)
	}
}

func TestContextTokenRoundTrip(t *testing.T) {
	token, err := GenerateContextToken("secret", "2ctx", time.Hour)
	require.NoError(t, err)

	claims, err := ParseContextToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "2ctx", claims.ContextID)

	_, err = ParseContextToken(token, "other")
	assert.Error(t, err)
}

func TestExpiredContextTokenRejected(t *testing.T) {
	token, err := GenerateContextToken("secret", "2ctx", -time.Minute)
	require.NoError(t, err)

	_, err = ParseContextToken(token, "secret")
	assert.Error(t, err)
}
