package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ladlehq/ladle/internal/data/pgxutil"
	"github.com/ladlehq/ladle/internal/domain/model"
)

// SQL used by ReserveNext to atomically reserve the next eligible job.
// Eligibility: waiting status and not_before has passed; preference: highest
// priority first, then earliest not_before. SKIP LOCKED guarantees no job is
// handed to two workers.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE category = $1 AND status = 'waiting' AND not_before <= $2
    ORDER BY priority DESC, not_before ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'active',
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumnsQualified

const jobColumnsQualified = `
  j.id, j.category, j.status, j.priority, j.payload, j.not_before,
  j.started_at, j.completed_at, j.attempt, j.max_attempts, j.last_error,
  j.lease_expires_at, j.created_at, j.updated_at`

// Create persists a new job and notifies workers of its category. The job
// becomes eligible at not_before (defaults to now).
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	notBefore := r.timeProvider.Now().UTC()
	if req.NotBefore != nil {
		notBefore = req.NotBefore.UTC()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
        INSERT INTO jobs(category, status, priority, payload, not_before, max_attempts)
        VALUES ($1, 'waiting', $2, $3, $4, $5)
        RETURNING `+jobColumns,
				req.Category, req.Priority, []byte(req.Payload), notBefore, maxAttempts)
			if qerr != nil {
				return fmt.Errorf("insert job: %w", qerr)
			}
			j, cerr := collectJobFromRows(rows)
			rows.Close()
			if cerr != nil {
				return fmt.Errorf("collect job: %w", cerr)
			}

			channel := "job_added_" + string(req.Category)
			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, j.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job created", "id", job.ID, "category", job.Category)
	}
	return job, nil
}

// Advisory lock namespace for requeueExpired to avoid cross-category contention.
const advisoryLockRequeueMajor int64 = 2201

func advisoryLockRequeueMinor(category model.JobCategory) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired returns expired-lease active jobs of the category to waiting.
func (r *JobRepo) requeueExpired(ctx context.Context, category model.JobCategory) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRequeueMinor(category)
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, minorKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET status = 'waiting', lease_expires_at = NULL
          WHERE category = $1 AND status = 'active'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
        `, category, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next eligible job of the category for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	category model.JobCategory,
	leaseSeconds int,
) (*model.Job, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid job category: %s", category)
	}

	if _, err := r.requeueExpired(ctx, category); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(ctx, reserveNextUpdateSQL,
				category,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on an active job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'active'
	`, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete marks an active job as completed successfully.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'active'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail records a retryable failure on an active job. While attempts remain
// the job returns to waiting with not_before = retryAt (the caller computes
// the backoff); once attempts are exhausted it is marked failed permanently.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string, retryAt time.Time) (bool, error) {
	currentTime := r.timeProvider.Now()

	res, err := r.DB.ExecContext(ctx, `
      UPDATE jobs
      SET
        last_error = $2,
        attempt = attempt + 1,
        status = CASE WHEN attempt + 1 >= max_attempts THEN 'failed' ELSE 'waiting' END,
        completed_at = CASE WHEN attempt + 1 >= max_attempts THEN $3::timestamptz ELSE NULL END,
        not_before = CASE WHEN attempt + 1 >= max_attempts THEN not_before
                          ELSE $4::timestamptz END,
        lease_expires_at = NULL,
        updated_at = $5
      WHERE id = $1 AND status = 'active'
    `, id, errMsg, currentTime.UTC(), retryAt.UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// FailPermanent marks an active job failed without consuming a retry attempt.
// Used for validation failures that retrying cannot fix.
func (r *JobRepo) FailPermanent(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    last_error = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'active'
	`, id, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job permanently: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail permanent rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Cancel removes a job while it is still waiting. Once active it must run to
// completion, failure or timeout.
func (r *JobRepo) Cancel(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id = $1 AND status = 'waiting'
	`, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err = r.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("re-check job after cancel attempt: %w", err)
	}
	return ErrJobNotCancellable
}

// Stats returns counts of jobs of the category in each state.
func (r *JobRepo) Stats(ctx context.Context, category model.JobCategory) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'waiting')   AS waiting,
    count(*) FILTER (WHERE status = 'active')    AS active,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM jobs
  WHERE category = $1
  `, category).Scan(&s.Waiting, &s.Active, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// ScheduledTaskPending reports whether a waiting or active scheduled job for
// the task already exists.
func (r *JobRepo) ScheduledTaskPending(ctx context.Context, task string) (bool, error) {
	var pending bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE category = 'scheduled'
			  AND status IN ('waiting', 'active')
			  AND payload->>'task' = $1
		)
	`, task).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("check scheduled task pending: %w", err)
	}
	return pending, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs
// of the category are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, category model.JobCategory) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	channel := "job_added_" + string(category)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		payload                                []byte
		lastError                              sql.NullString
		startedAt, completedAt, leaseExpiresAt sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Category,
		&job.Status,
		&job.Priority,
		&payload,
		&job.NotBefore,
		&startedAt,
		&completedAt,
		&job.Attempt,
		&job.MaxAttempts,
		&lastError,
		&leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = append(job.Payload, payload...)
	job.LastError = cloneNullableString(lastError)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.LeaseExpiresAt = cloneNullableTime(leaseExpiresAt)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
