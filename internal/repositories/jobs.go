package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

// JobRepository persists import job records for status polling.
//
// Jobs survive process restarts, so the status endpoint can report on a
// run that finished before the server came back up.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new [JobRepository] with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new pending job for the user and returns it.
func (r *JobRepository) Create(userID string) (*models.ImportJob, error) {
	now := time.Now()
	job := &models.ImportJob{
		ID:        shared.GenerateID(),
		UserID:    userID,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO import_jobs (id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := r.db.Exec(query, job.ID, job.UserID, job.Status, job.CreatedAt, job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

// MarkRunning transitions a job to running and stamps its start time.
func (r *JobRepository) MarkRunning(jobID string) error {
	now := time.Now()
	return r.exec(`
		UPDATE import_jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ?
	`, models.JobRunning, now, now, jobID)
}

// MarkSuccess records a completed run with its statistics payload.
func (r *JobRepository) MarkSuccess(jobID string, stats models.ImportStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	now := time.Now()
	return r.exec(`
		UPDATE import_jobs SET status = ?, stats = ?, completed_at = ?, updated_at = ? WHERE id = ?
	`, models.JobSuccess, string(payload), now, now, jobID)
}

// MarkFailure records a failed run, preserving the error message.
func (r *JobRepository) MarkFailure(jobID string, runErr error) error {
	now := time.Now()
	return r.exec(`
		UPDATE import_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?
	`, models.JobFailure, runErr.Error(), now, now, jobID)
}

// Get retrieves a job by id.
func (r *JobRepository) Get(jobID string) (*models.ImportJob, error) {
	query := `
		SELECT id, user_id, status, stats, error_message, started_at, completed_at, created_at, updated_at
		FROM import_jobs WHERE id = ?
	`

	var (
		job         models.ImportJob
		stats       sql.NullString
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := r.db.QueryRow(query, jobID).Scan(
		&job.ID, &job.UserID, &job.Status, &stats, &errMsg, &startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if stats.Valid && stats.String != "" {
		var s models.ImportStats
		if err := json.Unmarshal([]byte(stats.String), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
		job.Stats = &s
	}
	job.ErrorMessage = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

// ListByUser retrieves a user's jobs, most recent first.
func (r *JobRepository) ListByUser(userID string) ([]*models.ImportJob, error) {
	rows, err := r.db.Query(`SELECT id FROM import_jobs WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	jobs := make([]*models.ImportJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (r *JobRepository) exec(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %w", shared.ErrNotFound)
	}

	return nil
}
