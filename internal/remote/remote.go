// Package remote defines the Remote Execution Client: the capability set the
// gateway uses to reach the HPC facade. Implementations are stateless per
// call and safe for concurrent use.
package remote

import (
	"context"
	"fmt"
)

// Client is the blocking RPC surface of the HPC facade. Every method is
// scoped to a machine and takes absolute remote paths; no path validation is
// performed at this layer. All failures are returned as *OperationError.
type Client interface {
	// Mkdir creates path and any missing parents.
	Mkdir(ctx context.Context, machine, path string) error

	// ListFiles returns the entries of path in the order the facade reports them.
	ListFiles(ctx context.Context, machine, path string) ([]FileInfo, error)

	// Upload writes data as filename inside the directory dir.
	Upload(ctx context.Context, machine, dir, filename string, data []byte) error

	// Download returns the full contents of the file at path.
	Download(ctx context.Context, machine, path string) ([]byte, error)

	// Delete removes the file at path.
	Delete(ctx context.Context, machine, path string) error

	// Submit hands the batch script at scriptPath to the scheduler and
	// returns the scheduler's job id.
	Submit(ctx context.Context, machine, scriptPath string) (string, error)

	// Cancel signals the scheduler to cancel a job. It does not wait for
	// the job to terminate.
	Cancel(ctx context.Context, machine, jobID string) error

	// Poll returns the live status of each requested scheduler job.
	// Jobs unknown to the scheduler are absent from the result.
	Poll(ctx context.Context, machine string, jobIDs []string) (map[string]string, error)
}

// FileInfo describes one directory entry on the cluster.
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

// Operation names carried by OperationError.
const (
	OpMkdir    = "mkdir"
	OpList     = "list_files"
	OpUpload   = "upload"
	OpDownload = "download"
	OpDelete   = "delete"
	OpSubmit   = "submit"
	OpCancel   = "cancel"
	OpPoll     = "poll"
)

// OperationError is the uniform failure of any facade call. HTTP errors,
// timeouts and malformed responses are all folded into it.
type OperationError struct {
	Op      string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("remote %s: %s", e.Op, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
