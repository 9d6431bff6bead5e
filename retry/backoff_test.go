package retry

import (
	"testing"

	"github.com/adam-ce/cesium/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestBackoffDelay(t *testing.T) {
	b := &Backoff{BaseFrames: 2, MaxFrames: 20}

	tests := []struct {
		attempts int
		expected uint64
	}{
		{attempts: 0, expected: 2},
		{attempts: 1, expected: 2},
		{attempts: 2, expected: 4},
		{attempts: 3, expected: 8},
		{attempts: 4, expected: 16},
		{attempts: 5, expected: 20},
		{attempts: 100, expected: 20},
	}

	for _, test := range tests {
		require.Equal(t, test.expected, b.Delay(test.attempts), "attempts %d", test.attempts)
	}

	t.Run("defaults", func(t *testing.T) {
		var b Backoff
		require.Equal(t, uint64(DefaultBaseFrames), b.Delay(1))
		require.Equal(t, uint64(DefaultMaxFrames), b.Delay(1000))
	})
}

func TestBackoffAllow(t *testing.T) {
	b := NewBackoff(2, 20, 0, 0)
	require.Nil(t, b.Limiter)

	tile := &models.Tile{LoadAttempts: 2, LastLoadFrame: 10}
	require.False(t, b.Allow(tile, 10))
	require.False(t, b.Allow(tile, 13))
	require.True(t, b.Allow(tile, 14))
	require.False(t, b.Allow(tile, 5))

	t.Run("limiter", func(t *testing.T) {
		b := &Backoff{
			BaseFrames: 1,
			MaxFrames:  1,
			Limiter:    rate.NewLimiter(rate.Every(1<<62), 1),
		}

		tile := &models.Tile{LoadAttempts: 1, LastLoadFrame: 1}
		require.True(t, b.Allow(tile, 2))
		require.False(t, b.Allow(tile, 3))
	})

	t.Run("due does not take tokens", func(t *testing.T) {
		b := &Backoff{
			BaseFrames: 1,
			MaxFrames:  1,
			Limiter:    rate.NewLimiter(rate.Every(1<<62), 1),
		}

		tile := &models.Tile{LoadAttempts: 1, LastLoadFrame: 1}
		require.False(t, b.Due(tile, 1))
		for i := 0; i < 3; i++ {
			require.True(t, b.Due(tile, 2))
		}
		require.True(t, b.Allow(tile, 2))
		require.True(t, b.Due(tile, 3))
		require.False(t, b.Allow(tile, 3))
	})

	t.Run("new backoff with limit", func(t *testing.T) {
		b := NewBackoff(1, 10, 5, 0)
		require.NotNil(t, b.Limiter)
		require.Equal(t, 1, b.Limiter.Burst())
	})
}
