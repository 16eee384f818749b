// Package handlers contains HTTP handlers for the gateway API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/controller/middleware"
	"hpcgateway/internal/gateway"
	"hpcgateway/internal/remote"
	"hpcgateway/internal/store"
	"hpcgateway/pkg/api"
)

// Lifecycle is the job lifecycle surface the handlers drive.
type Lifecycle interface {
	RegisterUser(ctx context.Context, id auth.Identity) (*store.User, error)
	User(ctx context.Context, id auth.Identity) (*store.User, error)
	Heartbeat(ctx context.Context, id auth.Identity) ([]remote.FileInfo, error)
	CreateJob(ctx context.Context, id auth.Identity) (*store.Job, error)
	WriteScript(ctx context.Context, id auth.Identity, jobID string, spec gateway.ScriptSpec) error
	LaunchJob(ctx context.Context, id auth.Identity, jobID string) (*store.Job, error)
	CancelJob(ctx context.Context, id auth.Identity, jobID string) (*store.Job, error)
	JobState(ctx context.Context, id auth.Identity, jobID string) (*gateway.JobStatus, error)
	ListJobs(ctx context.Context, id auth.Identity) (map[string]string, error)
	DeleteJob(ctx context.Context, id auth.Identity, jobID string) error
}

// Files is the file relay surface.
type Files interface {
	List(ctx context.Context, id auth.Identity, jobID string) ([]remote.FileInfo, error)
	Upload(ctx context.Context, id auth.Identity, jobID, filename string, data []byte) error
	Download(ctx context.Context, id auth.Identity, jobID, filename string) ([]byte, error)
	Delete(ctx context.Context, id auth.Identity, jobID, filename string) error
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	jobs           Lifecycle
	files          Files
	db             Pinger
	maxUploadBytes int64
	logger         *slog.Logger
}

// New creates a new Handlers instance.
func New(jobs Lifecycle, files Files, db Pinger, maxUploadBytes int64, log *slog.Logger) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handlers{
		jobs:           jobs,
		files:          files,
		db:             db,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, err)
}

// identity returns the authenticated caller. The auth middleware guarantees
// one is present; a missing identity is reported as a missing token.
func (h *Handlers) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.httpError(w, gateway.FromAuth(auth.ErrMissingToken))
	}
	return id, ok
}

func toAPIFiles(files []remote.FileInfo) []api.FileInfo {
	out := make([]api.FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, api.FileInfo(f))
	}
	return out
}
