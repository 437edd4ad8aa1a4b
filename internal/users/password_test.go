package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	encoded, err := testHasher.Hash("p@ss1234")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"))

	matched, err := testHasher.Verify(encoded, "p@ss1234")
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = testHasher.Verify(encoded, "p@ss1235")
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestPasswordHasherUsesStoredParameters(t *testing.T) {
	stronger := PasswordHasher{Time: 2, Memory: 2048, Threads: 2, KeyLen: 16}
	encoded, err := stronger.Hash("secret")
	require.NoError(t, err)

	matched, err := testHasher.Verify(encoded, "secret")
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestPasswordHasherSaltsEachHash(t *testing.T) {
	first, err := testHasher.Hash("secret")
	require.NoError(t, err)
	second, err := testHasher.Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestPasswordHasherRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=1$m=1,t=1,p=1$AA$AA"} {
		_, err := testHasher.Verify(encoded, "secret")
		require.ErrorIs(t, err, errMalformedHash, "hash %q", encoded)
	}
}
