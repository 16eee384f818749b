package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hpcgateway/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const jobColumns = "id, user_id, remote_folder, state, remote_job_id, created_at, updated_at"

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*store.Job, error) {
	var (
		job         store.Job
		remoteJobID sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.RemoteFolder,
		&job.State,
		&remoteJobID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if remoteJobID.Valid {
		job.RemoteJobID = &remoteJobID.String
	}
	return &job, nil
}

// CreateJob inserts a new job row in the CREATED state.
func (s *Store) CreateJob(ctx context.Context, userID, remoteFolder string) (*store.Job, error) {
	query := `
		INSERT INTO jobs (id, user_id, remote_folder, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	now := time.Now().UTC()
	job := &store.Job{
		ID:           uuid.New().String(),
		UserID:       userID,
		RemoteFolder: remoteFolder,
		State:        store.JobStateCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.RemoteFolder,
		job.State,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("remote folder %s already tracked: %w", remoteFolder, store.ErrStateConflict)
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

// GetJob returns a job by its ID.
func (s *Store) GetJob(ctx context.Context, id string) (*store.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1"

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// UpdateJob activates a CREATED job. The state predicate in the WHERE clause
// makes concurrent launches of the same job race on the row: exactly one wins.
func (s *Store) UpdateJob(ctx context.Context, id, remoteJobID string) (*store.Job, error) {
	query := `
		UPDATE jobs
		SET state = $1, remote_job_id = $2, updated_at = $3
		WHERE id = $4 AND state = $5
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		store.JobStateActivated,
		remoteJobID,
		time.Now().UTC(),
		id,
		store.JobStateCreated,
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}

	// Nothing matched: tell a missing job apart from one already launched.
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrStateConflict
}

// ListJobs returns every job owned by userID.
func (s *Store) ListJobs(ctx context.Context, userID string) ([]store.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE user_id = $1"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes the job row. It never touches the remote folder.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// CountJobsByState groups all job rows by state.
func (s *Store) CountJobsByState(ctx context.Context) (map[store.JobState]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM jobs GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.JobState]int64)
	for rows.Next() {
		var (
			state store.JobState
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}
	return counts, nil
}
