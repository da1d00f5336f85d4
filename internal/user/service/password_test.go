package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hashed)

	ok, err := CheckPassword(hashed, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hashed, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = CheckPassword("not-a-hash", "x")
	assert.Error(t, err)
	assert.False(t, ok)
}
