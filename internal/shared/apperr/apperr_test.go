package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := NotFound("material %s", "MAT001")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "material MAT001", err.Error())

	wrapped := fmt.Errorf("reserve: %w", InsufficientStock("MAT002: need 200, have 180"))
	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.Equal(t, "MAT002: need 200, have 180", Message(wrapped))
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Upstream("inventory", cause)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "inventory call failed", Message(err))
	assert.Contains(t, err.Error(), "connection refused")
}
