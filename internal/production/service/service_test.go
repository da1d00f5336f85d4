package service

import (
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/stretchr/testify/assert"
)

func TestWithCodeRetry(t *testing.T) {
	calls := 0
	err := withCodeRetry(func() error {
		calls++
		if calls < 2 {
			return apperr.Conflict("batch number taken")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = withCodeRetry(func() error {
		calls++
		return apperr.Conflict("always")
	})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, codeAttempts, calls)

	calls = 0
	err = withCodeRetry(func() error {
		calls++
		return apperr.NotFound("request x not found")
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, 1, calls)
}
