package password_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/password"
)

func TestHashAndCompare(t *testing.T) {
	h := password.NewHasher(password.MinCost)

	hashed, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hashed)
	assert.NotEqual(t, "correct horse battery staple", hashed)

	assert.NoError(t, h.Compare(hashed, "correct horse battery staple"))

	err = h.Compare(hashed, "wrong password")
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestHashRejectsEmptyAndOversized(t *testing.T) {
	h := password.NewHasher(password.MinCost)

	_, err := h.Hash("")
	assert.True(t, apperr.IsInvalidArgument(err))

	long := make([]byte, password.MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = h.Hash(string(long))
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestValidateStrength(t *testing.T) {
	assert.Error(t, password.ValidateStrength("12345678"))
	assert.NoError(t, password.ValidateStrength("correct-horse-battery-staple-9"))
}
