package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeNotFound, "merge request not found")
	assert.Equal(t, "NOT_FOUND: merge request not found", err.Error())
}

func TestErrorWithCauseUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewErrorWithCause(ErrCodeUpstream, "gitlab unreachable", cause)

	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}
