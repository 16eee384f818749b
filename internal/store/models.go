// Package store contains the persistence layer for the gateway.
package store

import "time"

// User is a marketplace user registered with the gateway.
// Email is the natural key: at most one User exists per email.
type User struct {
	ID        string
	Email     string
	Name      string
	Home      string // absolute path of the user's folder on the cluster
	CreatedAt time.Time
}

// Job tracks a unit of remote computation and its working folder.
type Job struct {
	ID           string
	UserID       string
	RemoteFolder string
	State        JobState
	// RemoteJobID is assigned by the remote facade on submission.
	// It is set if and only if State is not JobStateCreated.
	RemoteJobID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobState is the local lifecycle phase of a job.
// It records whether the job was submitted, not its live execution status.
type JobState string

const (
	JobStateCreated   JobState = "CREATED"
	JobStateActivated JobState = "ACTIVATED"
	JobStateCancelled JobState = "CANCELLED"
)

// Launched reports whether the job has been handed to the remote facade.
func (j *Job) Launched() bool {
	return j.State != JobStateCreated && j.RemoteJobID != nil
}
