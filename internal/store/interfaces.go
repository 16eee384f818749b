package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrStateConflict is returned by conditional updates when the record
	// exists but is not in the state the update requires.
	ErrStateConflict = errors.New("store: state conflict")
)

// UserStore handles the persistence of registered users.
type UserStore interface {
	// CreateUser inserts a user keyed by email. If a user with that email
	// already exists it is returned unchanged.
	CreateUser(ctx context.Context, email, name, home string) (*User, error)

	// GetUser returns the user registered with email.
	GetUser(ctx context.Context, email string) (*User, error)
}

// JobStore handles the persistence of job records.
type JobStore interface {
	// CreateJob inserts a new job in the CREATED state.
	CreateJob(ctx context.Context, userID, remoteFolder string) (*Job, error)

	// GetJob returns a job by its ID.
	GetJob(ctx context.Context, id string) (*Job, error)

	// UpdateJob records the remote job id and moves the job from CREATED to
	// ACTIVATED in a single conditional write.
	UpdateJob(ctx context.Context, id, remoteJobID string) (*Job, error)

	// ListJobs returns all jobs owned by userID in no particular order.
	ListJobs(ctx context.Context, userID string) ([]Job, error)

	// DeleteJob removes the job record. Deleting a missing job is not an error.
	DeleteJob(ctx context.Context, id string) error
}

// Store is the full persistence surface used by the gateway process.
type Store interface {
	UserStore
	JobStore

	// CountJobsByState returns the number of job records per local state.
	CountJobsByState(ctx context.Context) (map[JobState]int64, error)

	Ping(ctx context.Context) error
	Close() error
}
