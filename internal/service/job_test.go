package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/mocks"
)

func newTestJobService(t *testing.T, repo *mocks.MockJobRepository) *JobService {
	t.Helper()
	svc, err := NewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		BackoffBase:  5 * time.Second,
		BackoffCap:   10 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func emailPayload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := payload.Encode(payload.Email{
		Recipients: []payload.Recipient{{To: "ops@example.com"}},
		Subject:    "Daily summary",
		Body:       "All good.",
	})
	require.NoError(t, err)
	return raw
}

func TestJobServiceEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a valid request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		req := &model.CreateJobRequest{
			Category:    model.JobCategoryEmail,
			Payload:     emailPayload(t),
			MaxAttempts: 3,
		}
		repo.EXPECT().Create(gomock.Any(), req).Return(&model.Job{
			ID:       "job-1",
			Category: model.JobCategoryEmail,
			Status:   model.JobStatusWaiting,
		}, nil)

		job, err := svc.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
	})

	t.Run("rejects payload that fails schema validation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		// structurally valid request, but the payload has no recipients
		raw, merr := json.Marshal(payload.Email{Subject: "s", Body: "b"})
		require.NoError(t, merr)

		_, err := svc.Enqueue(ctx, &model.CreateJobRequest{
			Category: model.JobCategoryEmail,
			Payload:  raw,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, payload.ErrInvalidPayload)
	})

	t.Run("rejects payload under the wrong category", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		_, err := svc.Enqueue(ctx, &model.CreateJobRequest{
			Category: model.JobCategoryInventory,
			Payload:  emailPayload(t),
		})
		require.Error(t, err)
	})

	t.Run("rejects out of range priority", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		_, err := svc.Enqueue(ctx, &model.CreateJobRequest{
			Category: model.JobCategoryEmail,
			Payload:  emailPayload(t),
			Priority: 101,
		})
		require.Error(t, err)
	})
}

func TestJobServiceReserveNext(t *testing.T) {
	ctx := context.Background()

	t.Run("passes through ErrNoJobsAvailable unwrapped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		repo.EXPECT().
			ReserveNext(gomock.Any(), model.JobCategoryEmail, 30).
			Return(nil, model.ErrNoJobsAvailable)

		_, err := svc.ReserveNext(ctx, model.JobCategoryEmail, 30*time.Second)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("clamps sub-second lease to one second", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		repo.EXPECT().
			ReserveNext(gomock.Any(), model.JobCategorySMS, 1).
			Return(&model.Job{ID: "job-2"}, nil)

		job, err := svc.ReserveNext(ctx, model.JobCategorySMS, 200*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "job-2", job.ID)
	})

	t.Run("zero lease uses the default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		repo.EXPECT().
			ReserveNext(gomock.Any(), model.JobCategoryReports, 30).
			Return(&model.Job{ID: "job-3"}, nil)

		_, err := svc.ReserveNext(ctx, model.JobCategoryReports, 0)
		require.NoError(t, err)
	})
}

func TestJobServiceFail(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent failure skips the retry path", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		job := &model.Job{ID: "job-1", Category: model.JobCategoryEmail, Attempt: 0, MaxAttempts: 3}
		permErr := model.Permanent(errors.New("invalid recipient address"))

		repo.EXPECT().
			FailPermanent(gomock.Any(), "job-1", permErr.Error()).
			Return(true, nil)

		failed, err := svc.Fail(ctx, job, permErr)
		require.NoError(t, err)
		assert.True(t, failed)
	})

	t.Run("transient failure reschedules with backoff", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		job := &model.Job{ID: "job-2", Category: model.JobCategoryEmail, Attempt: 2, MaxAttempts: 5}
		transientErr := errors.New("gateway timeout")

		before := time.Now().UTC()
		repo.EXPECT().
			Fail(gomock.Any(), "job-2", transientErr.Error(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _ string, retryAt time.Time) (bool, error) {
				// attempt 2 consumed: delay is base * 2^2 = 20s
				assert.WithinDuration(t, before.Add(20*time.Second), retryAt, 2*time.Second)
				return true, nil
			})

		failed, err := svc.Fail(ctx, job, transientErr)
		require.NoError(t, err)
		assert.True(t, failed)
	})

	t.Run("requires job and error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		svc := newTestJobService(t, repo)

		_, err := svc.Fail(ctx, nil, errors.New("x"))
		require.Error(t, err)
		_, err = svc.Fail(ctx, &model.Job{ID: "job-3"}, nil)
		require.Error(t, err)
	})
}

func TestJobServiceRetryAt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestJobService(t, repo)

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Second), svc.RetryAt(now, 0))
	assert.Equal(t, now.Add(10*time.Second), svc.RetryAt(now, 1))
	assert.Equal(t, now.Add(10*time.Minute), svc.RetryAt(now, 20))
}
