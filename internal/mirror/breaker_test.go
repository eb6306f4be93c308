package mirror

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerIgnoresNotFound(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, b.Do(func() error { return ErrNotFound }), ErrNotFound)
	}
	require.False(t, b.Tripped())
}

func TestBreakerTripsOnFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	boom := errors.New("boom")
	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	require.ErrorIs(t, b.Do(func() error { return boom }), boom)
	require.True(t, b.Tripped())

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrUnreachable)
	require.False(t, called)

	b.Reset()
	require.NoError(t, b.Do(func() error { return nil }))
}

func TestBreakerCountsOnlyConsecutiveFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	boom := errors.New("boom")
	require.Error(t, b.Do(func() error { return boom }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return boom }))
	require.ErrorIs(t, b.Do(func() error { return ErrNotFound }), ErrNotFound)
	require.Error(t, b.Do(func() error { return boom }))
	require.False(t, b.Tripped())
}
