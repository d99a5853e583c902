package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenShapeAndPrefix(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, token, 36)
}

func TestHashTokenProducesDistinctEncodingsBothVerify(t *testing.T) {
	secret := "hea_deadbeefdeadbeefdeadbeefdeadbeef"

	h1, err := HashToken(secret)
	require.NoError(t, err)
	h2, err := HashToken(secret)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, VerifyToken(secret, h1))
	assert.True(t, VerifyToken(secret, h2))
	assert.False(t, VerifyToken("wrong-secret", h1))
}

func TestIsArgon2Hash(t *testing.T) {
	encoded, err := HashToken("hea_anything")
	require.NoError(t, err)

	assert.True(t, IsArgon2Hash(encoded))
	assert.False(t, IsArgon2Hash("plaintext-legacy-row"))
	assert.False(t, IsArgon2Hash("$2a$10$somebcrypthash"))
}

func TestVerifyTokenRejectsMalformedHash(t *testing.T) {
	assert.False(t, VerifyToken("secret", "$argon2id$garbage"))
	assert.False(t, VerifyToken("secret", ""))
}
