// Package model defines the core data types used throughout the ladle job and
// inventory system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobCategory identifies which worker pool processes a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobCategory string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobCategoryEmail represents outbound email delivery jobs.
	JobCategoryEmail JobCategory = "email"
	// JobCategorySMS represents outbound SMS delivery jobs.
	JobCategorySMS JobCategory = "sms"
	// JobCategoryInventory represents asynchronous inventory side-effect jobs.
	JobCategoryInventory JobCategory = "inventory"
	// JobCategoryReports represents report generation jobs.
	JobCategoryReports JobCategory = "reports"
	// JobCategoryScheduled represents periodic scan and maintenance jobs.
	JobCategoryScheduled JobCategory = "scheduled"

	// JobStatusWaiting indicates a job is waiting to be picked up.
	JobStatusWaiting JobStatus = "waiting"
	// JobStatusActive indicates a job is currently being processed.
	JobStatusActive JobStatus = "active"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed permanently.
	JobStatusFailed JobStatus = "failed"
)

// JobCategories returns every valid category. The worker bootstrap ranges over
// this to start one pool per category.
func JobCategories() []JobCategory {
	return []JobCategory{
		JobCategoryEmail,
		JobCategorySMS,
		JobCategoryInventory,
		JobCategoryReports,
		JobCategoryScheduled,
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for JobCategory to allow env parsing.
func (c *JobCategory) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jc := JobCategory(v)
	if jc.Valid() {
		*c = jc
		return nil
	}
	return fmt.Errorf("invalid JobCategory: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are eligible for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobCategory is one of the closed set.
func (c JobCategory) Valid() bool {
	switch c {
	case JobCategoryEmail, JobCategorySMS, JobCategoryInventory, JobCategoryReports, JobCategoryScheduled:
		return true
	default:
		return false
	}
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusWaiting || s == JobStatusActive || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents a durable unit of asynchronous work with its retry state.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Category       JobCategory     `json:"category"                   db:"category"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	NotBefore      time.Time       `json:"not_before"                 db:"not_before"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	Attempt        int             `json:"attempt"                    db:"attempt"`
	MaxAttempts    int             `json:"max_attempts"               db:"max_attempts"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Category    JobCategory     `json:"category"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority,omitempty"`
	NotBefore   *time.Time      `json:"not_before,omitempty"`
	MaxAttempts int             `json:"max_attempts"`
}

// Validate validates the CreateJobRequest fields. Payload schema validation is
// the job service's responsibility; this only checks structural bounds.
func (r *CreateJobRequest) Validate() error {
	if !r.Category.Valid() {
		return errors.New("invalid job category")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	return nil
}

// JobStats represents counts of jobs in each state for one category.
type JobStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
