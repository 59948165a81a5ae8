package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	t.Run("new error carries code and message", func(t *testing.T) {
		err := New(CodeInvalidAddress, "bad address")
		assert.True(t, HasCode(err, CodeInvalidAddress))
		assert.Equal(t, "bad address", err.Error())
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("dial tcp: timeout")
		err := Wrap(cause, CodeFederationFailed, "federation lookup failed")
		require.ErrorIs(t, err, cause)
		assert.True(t, HasCode(err, CodeFederationFailed))
		assert.Equal(t, "federation lookup failed", Message(err))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "missing")
		outer := Wrap(inner, CodeInternal, "load failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.False(t, HasCode(outer, CodeNotFound))
	})

	t.Run("fmt wrapping preserves code", func(t *testing.T) {
		err := fmt.Errorf("adjust: %w", New(CodeSecurity, "invalid api key"))
		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeSecurity, code)
	})

	t.Run("wrap nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "x"))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		_, ok := CodeOf(errors.New("plain"))
		assert.False(t, ok)
	})
}
