package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfsignup/internal/signup/models"
	"selfsignup/pkg/platform/circuit"
)

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return c.err
}

func TestFailover(t *testing.T) {
	ctx := context.Background()
	n := sampleNotification(models.ChannelEmail)

	t.Run("healthy primary is the only transport", func(t *testing.T) {
		primary, secondary := &countingNotifier{}, &countingNotifier{}
		f := NewFailover(primary, secondary, nil)

		require.NoError(t, f.Notify(ctx, n))
		assert.Equal(t, 1, primary.calls)
		assert.Zero(t, secondary.calls)
	})

	t.Run("failed delivery falls through to secondary", func(t *testing.T) {
		primary, secondary := &countingNotifier{err: errors.New("smtp down")}, &countingNotifier{}
		f := NewFailover(primary, secondary, nil)

		require.NoError(t, f.Notify(ctx, n))
		assert.Equal(t, 1, secondary.calls)
	})

	t.Run("both failing reports both errors", func(t *testing.T) {
		smtpErr, kafkaErr := errors.New("smtp down"), errors.New("broker down")
		f := NewFailover(&countingNotifier{err: smtpErr}, &countingNotifier{err: kafkaErr}, nil)

		err := f.Notify(ctx, n)
		require.ErrorIs(t, err, smtpErr)
		require.ErrorIs(t, err, kafkaErr)
	})

	t.Run("open breaker skips primary until a probe is due", func(t *testing.T) {
		now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
		primary, secondary := &countingNotifier{err: errors.New("smtp down")}, &countingNotifier{}
		breaker := circuit.New("email", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
		f := NewFailover(primary, secondary, nil,
			WithBreaker(breaker),
			WithProbeInterval(time.Minute),
			WithFailoverClock(func() time.Time { return now }),
		)

		require.NoError(t, f.Notify(ctx, n))
		require.NoError(t, f.Notify(ctx, n))
		require.True(t, breaker.IsOpen())
		assert.Equal(t, 2, primary.calls)

		// First send while open probes once, the next one inside the interval does not.
		require.NoError(t, f.Notify(ctx, n))
		require.NoError(t, f.Notify(ctx, n))
		assert.Equal(t, 3, primary.calls)
		assert.Equal(t, 4, secondary.calls)

		primary.err = nil
		now = now.Add(2 * time.Minute)
		require.NoError(t, f.Notify(ctx, n))
		assert.False(t, breaker.IsOpen())
		assert.Equal(t, 4, primary.calls)
		assert.Equal(t, 4, secondary.calls)
	})
}
