package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	hashed, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hashed)
	assert.True(t, strings.HasPrefix(hashed, "$2a$04$"), "hash should embed algorithm and cost: %s", hashed)

	assert.True(t, h.Verify("secret123", hashed))
	assert.False(t, h.Verify("secret124", hashed))
}

func TestPasswordHasher_SaltsEachHash(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	first, err := h.Hash("same-password")
	require.NoError(t, err)
	second, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same-password", first))
	assert.True(t, h.Verify("same-password", second))
}

func TestPasswordHasher_VerifyMalformedHash(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	for _, hashed := range []string{"", "plain", "$2a$04$short", "$9z$04$abcdefghijklmnopqrstuv"} {
		assert.False(t, h.Verify("anything", hashed), "hash %q", hashed)
	}
}

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewPasswordHasher(99).Cost())
	assert.Equal(t, 12, NewPasswordHasher(12).Cost())
}
