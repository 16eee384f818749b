// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the gateway.
package api

// FileInfo is one entry of a remote directory listing.
type FileInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	LinkTarget   string `json:"link_target,omitempty"`
	User         string `json:"user"`
	Group        string `json:"group"`
	Permissions  string `json:"permissions"`
	LastModified string `json:"last_modified"`
	Size         string `json:"size"`
}

// CreateUserResponse is the response body after registering the caller.
type CreateUserResponse struct {
	Home    string `json:"home"`
	Message string `json:"message"`
}

// UserResponse describes the caller's registered record.
type UserResponse struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Home    string `json:"home"`
	Message string `json:"message"`
}

// HeartbeatResponse lists the caller's home folder.
type HeartbeatResponse struct {
	Output  []FileInfo `json:"output"`
	Message string     `json:"message"`
}

// ListJobsResponse maps job ids to their live status.
type ListJobsResponse struct {
	Jobs map[string]string `json:"jobs"`
}

// JobStateResponse describes one job.
type JobStateResponse struct {
	JobID       string  `json:"jobid"`
	State       string  `json:"state"`
	RemoteJobID *string `json:"remote_job_id"`
	Status      string  `json:"status"`
}

// JobResponse carries the id of a created or launched job.
type JobResponse struct {
	JobID string `json:"jobid"`
}

// JobScriptRequest is the request body for rendering a job's batch script.
type JobScriptRequest struct {
	Image        string   `json:"image"`
	Command      string   `json:"command"`
	Nodes        int      `json:"nodes,omitempty"`
	TasksPerNode int      `json:"ntasks_per_node,omitempty"`
	Time         string   `json:"time,omitempty"`
	Partition    string   `json:"partition,omitempty"`
	Modules      []string `json:"modules,omitempty"`
}

// JobScriptResponse is the response body after a script was written.
type JobScriptResponse struct {
	JobID   string `json:"jobid"`
	Message string `json:"message"`
}

// ListFilesResponse lists a job folder.
type ListFilesResponse struct {
	Files []FileInfo `json:"files"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    any    `json:"data"`
}
