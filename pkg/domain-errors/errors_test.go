package domainerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeExpiredCode, "code expired"))
		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeExpiredCode, code)
		assert.True(t, HasCode(err, CodeExpiredCode))
		assert.False(t, HasCode(err, CodeInvalidCode))
	})

	t.Run("unclassified error has no code", func(t *testing.T) {
		_, ok := CodeOf(errors.New("boom"))
		assert.False(t, ok)
	})

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		err := Wrap(context.DeadlineExceeded, CodeRegistrationFailed, "store timed out")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "store timed out")
	})
}

func TestClientCaused(t *testing.T) {
	client := []Code{CodeInvalidArgument, CodeRegistrationRejected, CodeInvalidCode, CodeExpiredCode, CodeUserNotFound}
	server := []Code{CodeRegistrationFailed, CodeLookupFailed, CodeClaimMissing, CodeInternal}
	for _, c := range client {
		assert.True(t, c.ClientCaused(), c)
	}
	for _, c := range server {
		assert.False(t, c.ClientCaused(), c)
	}
}
