package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstream_WrapsBothSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("encoder", cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "encoder")
}

func TestUpstream_NilAndAlreadyWrapped(t *testing.T) {
	assert.NoError(t, Upstream("encoder", nil))

	first := Upstream("index", errors.New("boom"))
	assert.Same(t, first, Upstream("retriever", first))
}

func TestValidation(t *testing.T) {
	err := Validation("query is required")
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "validation failed: query is required")
}
