package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/domain/model"
)

// mockReaperRepo simulates batch exhaustion: each operation returns its
// configured count once, then zero.
type mockReaperRepo struct {
	mu sync.Mutex

	staleCalls int
	staleCount int64
	staleErr   error

	deleteCalls  map[model.JobStatus]int
	deleteCounts map[model.JobStatus]int64
	deleteErr    error
}

func (m *mockReaperRepo) FailStaleWaiting(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleCalls++
	if m.staleErr != nil {
		return 0, m.staleErr
	}
	if m.staleCalls == 1 {
		return m.staleCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldTerminal(
	ctx context.Context,
	status model.JobStatus,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteCalls == nil {
		m.deleteCalls = make(map[model.JobStatus]int)
	}
	m.deleteCalls[status]++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if m.deleteCalls[status] == 1 {
		return m.deleteCounts[status], nil
	}
	return 0, nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		WaitingMaxAge:   24 * time.Hour,
		CompletedMaxAge: 7 * 24 * time.Hour,
		FailedMaxAge:    7 * 24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
		require.Error(t, err)
	})
}

func TestReaperRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("drains every retention operation", func(t *testing.T) {
		repo := &mockReaperRepo{
			staleCount: 3,
			deleteCounts: map[model.JobStatus]int64{
				model.JobStatusCompleted: 10,
				model.JobStatusFailed:    2,
			},
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(ctx))

		// Each operation loops until a zero batch.
		assert.Equal(t, 2, repo.staleCalls)
		assert.Equal(t, 2, repo.deleteCalls[model.JobStatusCompleted])
		assert.Equal(t, 2, repo.deleteCalls[model.JobStatusFailed])
	})

	t.Run("keeps going after one operation fails", func(t *testing.T) {
		repo := &mockReaperRepo{
			staleErr: errors.New("lock timeout"),
			deleteCounts: map[model.JobStatus]int64{
				model.JobStatusCompleted: 1,
			},
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		err = svc.RunOnce(ctx)
		require.Error(t, err)
		// Deletions still ran despite the stale-jobs failure.
		assert.NotZero(t, repo.deleteCalls[model.JobStatusCompleted])
		assert.NotZero(t, repo.deleteCalls[model.JobStatusFailed])
	})

	t.Run("context cancellation is reported as such", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		repo := &mockReaperRepo{
			staleErr:  context.Canceled,
			deleteErr: context.Canceled,
		}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		err = svc.RunOnce(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
