package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackoffPolicy(t *testing.T) {
	t.Run("rejects non-positive base or cap", func(t *testing.T) {
		_, err := NewBackoffPolicy(0, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidBackoff)

		_, err = NewBackoffPolicy(time.Second, -time.Minute)
		assert.ErrorIs(t, err, ErrInvalidBackoff)
	})

	t.Run("raises cap to base when inverted", func(t *testing.T) {
		p, err := NewBackoffPolicy(time.Minute, time.Second)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, p.Delay(5))
	})
}

func TestBackoffDelay(t *testing.T) {
	p, err := NewBackoffPolicy(5*time.Second, 10*time.Minute)
	require.NoError(t, err)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 10 * time.Second},
		{attempt: 2, want: 20 * time.Second},
		{attempt: 3, want: 40 * time.Second},
		{attempt: 6, want: 320 * time.Second},
		{attempt: 7, want: 10 * time.Minute},
		{attempt: 20, want: 10 * time.Minute},
		{attempt: 500, want: 10 * time.Minute}, // doubling must not overflow
		{attempt: -3, want: 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffNextRun(t *testing.T) {
	p, err := NewBackoffPolicy(5*time.Second, 10*time.Minute)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(20*time.Second), p.NextRun(now, 2))
}
