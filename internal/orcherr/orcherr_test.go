package orcherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Transient("net", nil).Retryable())
	assert.True(t, RateLimited("429", nil).Retryable())
	assert.False(t, Input("bad file", nil).Retryable())
	assert.False(t, Conflict("dup", nil).Retryable())
	assert.False(t, NotFound("missing", nil).Retryable())
	assert.False(t, Fatal("dead", nil).Retryable())
}

func TestErrorString(t *testing.T) {
	e := Transient("request failed", errors.New("connection reset"))
	assert.Equal(t, "request failed: connection reset", e.Error())

	e = Fatal("repository path missing", nil)
	assert.Equal(t, "repository path missing", e.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Transient("wrapped", cause)

	assert.ErrorIs(t, e, cause)
}

func TestAs(t *testing.T) {
	e := RateLimited("quota", nil)

	oe, ok := As(e)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, oe.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)

	_, ok = As(fmt.Errorf("wrapped: %w", e))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "rate_limited", KindRateLimited.String())
	assert.Equal(t, "input", KindInput.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "fatal", KindFatal.String())
}
