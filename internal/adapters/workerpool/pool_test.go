package workerpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/mocks"
	"github.com/ladlehq/ladle/internal/notify"
	"github.com/ladlehq/ladle/internal/service"
)

// senderFunc adapts a function into a notify.Sender for tests.
type senderFunc func(ctx context.Context, msg notify.Message) error

func (f senderFunc) Send(ctx context.Context, msg notify.Message) error { return f(ctx, msg) }

// sendScript routes each recipient to a scripted outcome and records the
// delivery order.
type sendScript struct {
	outcomes map[string]error
	sent     []string
}

func (s *sendScript) sender() notify.Sender {
	return senderFunc(func(_ context.Context, msg notify.Message) error {
		s.sent = append(s.sent, msg.To)
		return s.outcomes[msg.To]
	})
}

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		Concurrency:    2,
		JobLease:       30 * time.Second,
		HandlerTimeout: time.Minute,
	}
}

func newTestPool(t *testing.T, repo *mocks.MockJobRepository, tune func(*Options)) *Pool {
	t.Helper()

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		BackoffBase:  5 * time.Second,
		BackoffCap:   10 * time.Minute,
	})
	require.NoError(t, err)

	opts := Options{
		Category: model.JobCategoryEmail,
		Pool:     testPoolConfig(),
		Jobs:     jobs,
	}
	if tune != nil {
		tune(&opts)
	}

	pool, err := New(opts)
	require.NoError(t, err)
	return pool
}

func emailJob(t *testing.T, recipients []string, attempt, maxAttempts int) *model.Job {
	t.Helper()

	rs := make([]payload.Recipient, 0, len(recipients))
	for _, to := range recipients {
		rs = append(rs, payload.Recipient{To: to})
	}
	raw, err := payload.Encode(payload.Email{
		Recipients: rs,
		Subject:    "Order ready",
		Body:       "Table 12 is up",
	})
	require.NoError(t, err)

	return &model.Job{
		ID:          "job-1",
		Category:    model.JobCategoryEmail,
		Status:      model.JobStatusActive,
		Payload:     raw,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}

func TestNewPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		BackoffBase:  5 * time.Second,
		BackoffCap:   10 * time.Minute,
	})
	require.NoError(t, err)

	t.Run("rejects unknown category", func(t *testing.T) {
		_, err := New(Options{Category: "laundry", Pool: testPoolConfig(), Jobs: jobs})
		require.Error(t, err)
	})

	t.Run("requires a job service", func(t *testing.T) {
		_, err := New(Options{Category: model.JobCategoryEmail, Pool: testPoolConfig()})
		require.Error(t, err)
	})

	t.Run("builds a limiter only when a rate is set", func(t *testing.T) {
		cfg := testPoolConfig()
		pool, err := New(Options{Category: model.JobCategoryEmail, Pool: cfg, Jobs: jobs})
		require.NoError(t, err)
		assert.Nil(t, pool.limiter)

		cfg.RatePerSecond = 5
		cfg.Burst = 2
		pool, err = New(Options{Category: model.JobCategoryEmail, Pool: cfg, Jobs: jobs})
		require.NoError(t, err)
		assert.NotNil(t, pool.limiter)
	})
}

func TestHandleMalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), nil)

	job := &model.Job{
		ID:          "job-1",
		Category:    model.JobCategoryEmail,
		Payload:     json.RawMessage(`{"recipients": []}`),
		MaxAttempts: 3,
	}

	outcome := pool.handle(context.Background(), job)
	require.Error(t, outcome.err)
	assert.True(t, model.IsPermanent(outcome.err), "undecodable payload should never retry")
}

func TestHandleEmailDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("all recipients delivered", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		outcome := pool.handle(ctx, emailJob(t, []string{"a@x.test", "b@x.test"}, 0, 3))
		assert.NoError(t, outcome.err)
		assert.Nil(t, outcome.continuation)
		assert.Equal(t, []string{"a@x.test", "b@x.test"}, script.sent)
	})

	t.Run("every recipient undeliverable fails permanently", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{
			"a@x.test": model.Permanent(errors.New("mailbox does not exist")),
			"b@x.test": model.Permanent(errors.New("mailbox does not exist")),
		}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		outcome := pool.handle(ctx, emailJob(t, []string{"a@x.test", "b@x.test"}, 0, 3))
		require.Error(t, outcome.err)
		assert.True(t, model.IsPermanent(outcome.err))
	})

	t.Run("nothing sent with a transient failure retries the whole job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{
			"a@x.test": model.Permanent(errors.New("mailbox does not exist")),
			"b@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		outcome := pool.handle(ctx, emailJob(t, []string{"a@x.test", "b@x.test"}, 0, 3))
		require.Error(t, outcome.err)
		assert.False(t, model.IsPermanent(outcome.err))
		assert.Nil(t, outcome.continuation)
	})

	t.Run("permanent failures alone do not block completion", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{
			"bad@x.test": model.Permanent(errors.New("mailbox does not exist")),
		}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		outcome := pool.handle(ctx, emailJob(t, []string{"ok@x.test", "bad@x.test"}, 0, 3))
		assert.NoError(t, outcome.err)
		assert.Nil(t, outcome.continuation, "undeliverable recipients are dropped, not retried")
	})

	t.Run("partial success re-enqueues only the transient failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{
			"flaky@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"ok@x.test", "flaky@x.test"}, 1, 5)
		before := time.Now().UTC()
		outcome := pool.handle(ctx, job)

		assert.NoError(t, outcome.err)
		require.NotNil(t, outcome.continuation)
		require.Error(t, outcome.partialErr)

		cont := outcome.continuation
		assert.Equal(t, model.JobCategoryEmail, cont.Category)
		// attempts already consumed (this one included) come off the budget
		assert.Equal(t, 3, cont.MaxAttempts)
		require.NotNil(t, cont.NotBefore)
		assert.True(t, cont.NotBefore.After(before), "continuation must be delayed")

		decoded, err := payload.Decode(model.JobCategoryEmail, cont.Payload)
		require.NoError(t, err)
		email, ok := decoded.(payload.Email)
		require.True(t, ok)
		require.Len(t, email.Recipients, 1)
		assert.Equal(t, "flaky@x.test", email.Recipients[0].To)
		assert.Equal(t, "Order ready", email.Subject)
	})

	t.Run("partial success with no attempts left fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		script := &sendScript{outcomes: map[string]error{
			"flaky@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Email = script.sender()
		})

		// Attempt 2 of 3: the retry budget is spent.
		outcome := pool.handle(ctx, emailJob(t, []string{"ok@x.test", "flaky@x.test"}, 2, 3))
		require.Error(t, outcome.err)
		assert.Nil(t, outcome.continuation)
	})

	t.Run("missing sender is a transient configuration error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), nil)

		outcome := pool.handle(ctx, emailJob(t, []string{"a@x.test"}, 0, 3))
		require.Error(t, outcome.err)
		assert.False(t, model.IsPermanent(outcome.err))
	})
}

func TestHandleSMSChannelRouting(t *testing.T) {
	ctx := context.Background()

	smsJobFor := func(t *testing.T, channel string) *model.Job {
		t.Helper()
		raw, err := payload.Encode(payload.SMS{
			Recipients: []payload.Recipient{{To: "+15550100"}},
			Body:       "Your table is ready",
			Channel:    channel,
		})
		require.NoError(t, err)
		return &model.Job{
			ID:          "job-sms",
			Category:    model.JobCategorySMS,
			Payload:     raw,
			MaxAttempts: 3,
		}
	}

	t.Run("default channel uses the sms sender", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sms := &sendScript{outcomes: map[string]error{}}
		wa := &sendScript{outcomes: map[string]error{}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Category = model.JobCategorySMS
			o.SMS = sms.sender()
			o.WhatsApp = wa.sender()
		})

		outcome := pool.handle(ctx, smsJobFor(t, ""))
		assert.NoError(t, outcome.err)
		assert.Len(t, sms.sent, 1)
		assert.Empty(t, wa.sent)
	})

	t.Run("whatsapp channel uses the whatsapp sender", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sms := &sendScript{outcomes: map[string]error{}}
		wa := &sendScript{outcomes: map[string]error{}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Category = model.JobCategorySMS
			o.SMS = sms.sender()
			o.WhatsApp = wa.sender()
		})

		outcome := pool.handle(ctx, smsJobFor(t, payload.ChannelWhatsApp))
		assert.NoError(t, outcome.err)
		assert.Empty(t, sms.sent)
		assert.Len(t, wa.sent, 1)
	})

	t.Run("whatsapp without a configured sender names the channel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sms := &sendScript{outcomes: map[string]error{}}
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Category = model.JobCategorySMS
			o.SMS = sms.sender()
		})

		outcome := pool.handle(ctx, smsJobFor(t, payload.ChannelWhatsApp))
		require.Error(t, outcome.err)
		assert.Contains(t, outcome.err.Error(), "whatsapp")
		assert.Empty(t, sms.sent)
	})
}

func TestHandleUnconfiguredServices(t *testing.T) {
	ctx := context.Background()

	t.Run("inventory without deduction service", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Category = model.JobCategoryInventory
		})

		raw, err := payload.Encode(payload.Inventory{
			OrderID:    "ord-1",
			LocationID: "loc-1",
			Lines:      []model.OrderLine{{MenuItemID: "burger", Quantity: 1}},
		})
		require.NoError(t, err)

		outcome := pool.handle(ctx, &model.Job{
			ID: "job-inv", Category: model.JobCategoryInventory, Payload: raw, MaxAttempts: 3,
		})
		require.Error(t, outcome.err)
		assert.False(t, model.IsPermanent(outcome.err))
	})

	t.Run("scheduled without scan service", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pool := newTestPool(t, mocks.NewMockJobRepository(ctrl), func(o *Options) {
			o.Category = model.JobCategoryScheduled
		})

		raw, err := payload.Encode(payload.Scheduled{Task: payload.TaskLowStockScan})
		require.NoError(t, err)

		outcome := pool.handle(ctx, &model.Job{
			ID: "job-sched", Category: model.JobCategoryScheduled, Payload: raw, MaxAttempts: 1,
		})
		require.Error(t, outcome.err)
	})
}

func TestProcessJobOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("success completes the job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		script := &sendScript{outcomes: map[string]error{}}
		pool := newTestPool(t, repo, func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"a@x.test"}, 0, 3)
		repo.EXPECT().Complete(gomock.Any(), job.ID).Return(true, nil)

		pool.processJob(ctx, job)
	})

	t.Run("transient handler failure records a retry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		script := &sendScript{outcomes: map[string]error{
			"a@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, repo, func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"a@x.test"}, 0, 3)
		repo.EXPECT().
			Fail(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, errMsg string, retryAt time.Time) (bool, error) {
				assert.Contains(t, errMsg, "gateway timeout")
				assert.True(t, retryAt.After(time.Now().UTC().Add(-time.Second)))
				return true, nil
			})

		pool.processJob(ctx, job)
	})

	t.Run("permanent handler failure bypasses the retry schedule", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		script := &sendScript{outcomes: map[string]error{
			"a@x.test": model.Permanent(errors.New("mailbox does not exist")),
		}}
		pool := newTestPool(t, repo, func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"a@x.test"}, 0, 3)
		repo.EXPECT().FailPermanent(gomock.Any(), job.ID, gomock.Any()).Return(true, nil)

		pool.processJob(ctx, job)
	})

	t.Run("continuation is enqueued before the job completes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		script := &sendScript{outcomes: map[string]error{
			"flaky@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, repo, func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"ok@x.test", "flaky@x.test"}, 0, 3)

		created := repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				assert.Equal(t, model.JobCategoryEmail, req.Category)
				assert.Equal(t, 2, req.MaxAttempts)
				return &model.Job{ID: "job-2", Category: req.Category}, nil
			})
		repo.EXPECT().Complete(gomock.Any(), job.ID).Return(true, nil).After(created)

		pool.processJob(ctx, job)
	})

	t.Run("lost continuation retries the whole job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		script := &sendScript{outcomes: map[string]error{
			"flaky@x.test": errors.New("gateway timeout"),
		}}
		pool := newTestPool(t, repo, func(o *Options) {
			o.Email = script.sender()
		})

		job := emailJob(t, []string{"ok@x.test", "flaky@x.test"}, 0, 3)

		repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("connection refused"))
		repo.EXPECT().
			Fail(gomock.Any(), job.ID, gomock.Any(), gomock.Any()).
			Return(true, nil)

		pool.processJob(ctx, job)
	})
}

// queueJobRepo serves a fixed batch of jobs to Run-loop tests and signals
// done when the last one completes.
type queueJobRepo struct {
	mu        sync.Mutex
	queue     []*model.Job
	completed int
	total     int
	done      chan struct{}
}

var _ core.JobRepository = (*queueJobRepo)(nil)

func newQueueJobRepo(jobs []*model.Job) *queueJobRepo {
	return &queueJobRepo{queue: jobs, total: len(jobs), done: make(chan struct{})}
}

func (s *queueJobRepo) ReserveNext(_ context.Context, _ model.JobCategory, _ int) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	return job, nil
}

func (s *queueJobRepo) Complete(_ context.Context, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if s.completed == s.total {
		close(s.done)
	}
	return true, nil
}

func (s *queueJobRepo) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *queueJobRepo) WaitForNotification(ctx context.Context, _ model.JobCategory) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *queueJobRepo) Create(context.Context, *model.CreateJobRequest) (*model.Job, error) {
	return nil, errors.New("unexpected create")
}

func (s *queueJobRepo) Heartbeat(context.Context, string, int) (bool, error) { return true, nil }

func (s *queueJobRepo) Fail(context.Context, string, string, time.Time) (bool, error) {
	return true, nil
}

func (s *queueJobRepo) FailPermanent(context.Context, string, string) (bool, error) {
	return true, nil
}

func (s *queueJobRepo) Cancel(context.Context, string) error { return nil }

func (s *queueJobRepo) GetByID(context.Context, string) (*model.Job, error) {
	return nil, errors.New("not found")
}

func (s *queueJobRepo) Stats(context.Context, model.JobCategory) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

func (s *queueJobRepo) ScheduledTaskPending(context.Context, string) (bool, error) {
	return false, nil
}

func runBatch(t *testing.T, cfg config.PoolConfig, repo *queueJobRepo, sender notify.Sender) {
	t.Helper()

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		BackoffBase:  5 * time.Second,
		BackoffCap:   10 * time.Minute,
	})
	require.NoError(t, err)

	pool, err := New(Options{
		Category: model.JobCategoryEmail,
		Pool:     cfg,
		Jobs:     jobs,
		Email:    sender,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(ctx) }()

	select {
	case <-repo.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("batch stalled: %d of %d jobs completed", repo.completedCount(), repo.total)
	}
	cancel()

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

func emailBatch(t *testing.T, n int) []*model.Job {
	t.Helper()
	batch := make([]*model.Job, 0, n)
	for i := range n {
		job := emailJob(t, []string{"crew@x.test"}, 0, 3)
		job.ID = fmt.Sprintf("job-%d", i)
		batch = append(batch, job)
	}
	return batch
}

func TestRunConcurrencyCeiling(t *testing.T) {
	repo := newQueueJobRepo(emailBatch(t, 20))

	var mu sync.Mutex
	inFlight, peak := 0, 0
	sender := senderFunc(func(_ context.Context, _ notify.Message) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	cfg := testPoolConfig()
	cfg.Concurrency = 5
	runBatch(t, cfg, repo, sender)

	assert.Equal(t, 20, repo.completedCount())
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 5, "active jobs must never exceed the pool size")
	assert.Greater(t, peak, 1, "workers should overlap on a 20 job batch")
}

func TestRunRateBudget(t *testing.T) {
	repo := newQueueJobRepo(emailBatch(t, 6))
	sender := senderFunc(func(_ context.Context, _ notify.Message) error { return nil })

	cfg := testPoolConfig()
	cfg.Concurrency = 4
	cfg.RatePerSecond = 100
	cfg.Burst = 1

	start := time.Now()
	runBatch(t, cfg, repo, sender)
	elapsed := time.Since(start)

	assert.Equal(t, 6, repo.completedCount())
	// Burst 1 at 100/s admits one reserve immediately and then one every
	// 10ms, so six jobs cannot all start inside the first 45ms.
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}
