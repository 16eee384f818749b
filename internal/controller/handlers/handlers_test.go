package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/controller/middleware"
	"hpcgateway/internal/gateway"
	"hpcgateway/internal/remote"
	"hpcgateway/internal/store"
)

var testIdentity = auth.Identity{Email: "a@b.c", Name: "A B"}

// mockLifecycle implements Lifecycle for testing
type mockLifecycle struct {
	user    *store.User
	userErr error

	files   []remote.FileInfo
	fileErr error

	job    *store.Job
	jobErr error

	status    *gateway.JobStatus
	statusErr error

	jobs    map[string]string
	listErr error

	scriptErr error
	deleteErr error

	// Spies (to verify arguments passed by handlers)
	capturedJobID  string
	capturedSpec   gateway.ScriptSpec
	capturedCaller auth.Identity
}

func (m *mockLifecycle) RegisterUser(ctx context.Context, id auth.Identity) (*store.User, error) {
	m.capturedCaller = id
	return m.user, m.userErr
}

func (m *mockLifecycle) User(ctx context.Context, id auth.Identity) (*store.User, error) {
	m.capturedCaller = id
	return m.user, m.userErr
}

func (m *mockLifecycle) Heartbeat(ctx context.Context, id auth.Identity) ([]remote.FileInfo, error) {
	return m.files, m.fileErr
}

func (m *mockLifecycle) CreateJob(ctx context.Context, id auth.Identity) (*store.Job, error) {
	return m.job, m.jobErr
}

func (m *mockLifecycle) WriteScript(ctx context.Context, id auth.Identity, jobID string, spec gateway.ScriptSpec) error {
	m.capturedJobID = jobID
	m.capturedSpec = spec
	return m.scriptErr
}

func (m *mockLifecycle) LaunchJob(ctx context.Context, id auth.Identity, jobID string) (*store.Job, error) {
	m.capturedJobID = jobID
	return m.job, m.jobErr
}

func (m *mockLifecycle) CancelJob(ctx context.Context, id auth.Identity, jobID string) (*store.Job, error) {
	m.capturedJobID = jobID
	return m.job, m.jobErr
}

func (m *mockLifecycle) JobState(ctx context.Context, id auth.Identity, jobID string) (*gateway.JobStatus, error) {
	m.capturedJobID = jobID
	return m.status, m.statusErr
}

func (m *mockLifecycle) ListJobs(ctx context.Context, id auth.Identity) (map[string]string, error) {
	return m.jobs, m.listErr
}

func (m *mockLifecycle) DeleteJob(ctx context.Context, id auth.Identity, jobID string) error {
	m.capturedJobID = jobID
	return m.deleteErr
}

// mockFiles implements Files for testing
type mockFiles struct {
	files    []remote.FileInfo
	data     []byte
	err      error
	uploaded []byte

	capturedJobID    string
	capturedFilename string
}

func (m *mockFiles) List(ctx context.Context, id auth.Identity, jobID string) ([]remote.FileInfo, error) {
	m.capturedJobID = jobID
	return m.files, m.err
}

func (m *mockFiles) Upload(ctx context.Context, id auth.Identity, jobID, filename string, data []byte) error {
	m.capturedJobID = jobID
	m.capturedFilename = filename
	m.uploaded = data
	return m.err
}

func (m *mockFiles) Download(ctx context.Context, id auth.Identity, jobID, filename string) ([]byte, error) {
	m.capturedJobID = jobID
	m.capturedFilename = filename
	return m.data, m.err
}

func (m *mockFiles) Delete(ctx context.Context, id auth.Identity, jobID, filename string) error {
	m.capturedJobID = jobID
	m.capturedFilename = filename
	return m.err
}

// mockPinger implements Pinger for testing
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func newTestHandlers(jobs *mockLifecycle, files *mockFiles) *Handlers {
	if jobs == nil {
		jobs = &mockLifecycle{}
	}
	if files == nil {
		files = &mockFiles{}
	}
	return New(jobs, files, &mockPinger{}, 1<<10, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// withIdentity injects the caller the auth middleware would have resolved.
func withIdentity(r *http.Request) *http.Request {
	return r.WithContext(middleware.NewContextWithIdentity(r.Context(), testIdentity))
}
