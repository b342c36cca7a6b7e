// Package data implements the Postgres-backed repositories behind the core
// ports: the durable job queue, location stock, recipes and inventory lots.
package data

import (
	"database/sql"
	"log/slog"

	"github.com/ladlehq/ladle/internal/core"
)

// JobRepoConfig holds configuration options for the job repository.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider core.TimeProvider
}

// JobRepo provides database operations for the durable job queue.
type JobRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  category,
  status,
  priority,
  payload,
  not_before,
  started_at,
  completed_at,
  attempt,
  max_attempts,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
