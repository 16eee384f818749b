// Package gateway holds the core of the HPC gateway: the Job Lifecycle
// Manager that keeps job records consistent with what was requested of the
// remote facade, and the File Relay that scopes file traffic to job folders.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/logger"
	"hpcgateway/internal/remote"
	"hpcgateway/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Live statuses reported for jobs the scheduler cannot describe.
const (
	StatusNotLaunched = "NOT_LAUNCHED"
	StatusUnknown     = "UNKNOWN"
)

// Config holds the cluster-side settings of the manager.
type Config struct {
	Machine      string
	ClusterRoot  string
	JobScript    string
	VerifyScript bool
}

// Manager orchestrates users and jobs across the store and the remote facade.
// It is safe for concurrent use; all state lives in the store.
type Manager struct {
	users  store.UserStore
	jobs   store.JobStore
	remote remote.Client
	cfg    Config
	logger *slog.Logger

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// NewManager creates a manager.
func NewManager(users store.UserStore, jobs store.JobStore, rc remote.Client, cfg Config, log *slog.Logger) (*Manager, error) {
	if cfg.JobScript == "" {
		cfg.JobScript = "submit.sh"
	}
	transitions, err := otel.Meter("hpcgateway/gateway").Int64Counter("hpcgateway.job.transitions",
		metric.WithDescription("Number of job lifecycle transitions"))
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	return &Manager{
		users:       users,
		jobs:        jobs,
		remote:      rc,
		cfg:         cfg,
		logger:      log,
		tracer:      otel.Tracer("hpcgateway/gateway"),
		transitions: transitions,
	}, nil
}

// JobStatus is a job together with its live scheduler status.
type JobStatus struct {
	Job    *store.Job
	Status string
}

func (m *Manager) span(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, span := m.tracer.Start(ctx, "gateway."+op)
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (m *Manager) record(ctx context.Context, transition string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

// RegisterUser creates the caller's user record and home folder. Repeating
// the call is safe: the record keeps its first name and mkdir is idempotent.
func (m *Manager) RegisterUser(ctx context.Context, id auth.Identity) (user *store.User, err error) {
	ctx, end := m.span(ctx, "RegisterUser")
	defer end(&err)

	home, err := HomeFor(m.cfg.ClusterRoot, id.Email)
	if err != nil {
		return nil, err
	}

	user, err = m.users.CreateUser(ctx, id.Email, id.Name, home)
	if err != nil {
		return nil, persistenceError(err)
	}

	if err := m.remote.Mkdir(ctx, m.cfg.Machine, user.Home); err != nil {
		return nil, remoteError(CodeRemoteFolderCreationFailed, err)
	}

	logger.FromContext(ctx, m.logger).Info("user registered", "user_id", user.ID, "home", user.Home)
	return user, nil
}

// User returns the caller's registered record.
func (m *Manager) User(ctx context.Context, id auth.Identity) (*store.User, error) {
	user, err := m.users.GetUser(ctx, id.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeUserNotRegistered, "user is not registered", nil)
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	return user, nil
}

// Heartbeat lists the caller's home folder, proving the whole chain works.
func (m *Manager) Heartbeat(ctx context.Context, id auth.Identity) (files []remote.FileInfo, err error) {
	ctx, end := m.span(ctx, "Heartbeat")
	defer end(&err)

	user, err := m.User(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err = m.remote.ListFiles(ctx, m.cfg.Machine, user.Home)
	if err != nil {
		return nil, remoteError(CodeRemoteOperationFailed, err)
	}
	return files, nil
}

// ownedJob loads jobID on behalf of id. Jobs of other users are reported as
// not found.
func (m *Manager) ownedJob(ctx context.Context, id auth.Identity, jobID string) (*store.Job, error) {
	user, err := m.User(ctx, id)
	if err != nil {
		return nil, err
	}

	notFound := newError(CodeJobNotFound, fmt.Sprintf("job %s not found", jobID), nil)
	// uuid.Parse also accepts urn and braced forms; the store only knows the
	// canonical one.
	parsed, err := uuid.Parse(jobID)
	if err != nil {
		return nil, notFound
	}

	job, err := m.jobs.GetJob(ctx, parsed.String())
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	if job.UserID != user.ID {
		return nil, notFound
	}
	return job, nil
}

// CreateJob makes a fresh remote folder under the caller's home and records
// a job for it. The folder is created first; no record exists unless it was.
func (m *Manager) CreateJob(ctx context.Context, id auth.Identity) (job *store.Job, err error) {
	ctx, end := m.span(ctx, "CreateJob")
	defer end(&err)

	user, err := m.User(ctx, id)
	if err != nil {
		return nil, err
	}

	folder := path.Join(user.Home, uuid.NewString())
	if err := m.remote.Mkdir(ctx, m.cfg.Machine, folder); err != nil {
		return nil, remoteError(CodeRemoteFolderCreationFailed, err)
	}

	job, err = m.jobs.CreateJob(ctx, user.ID, folder)
	if err != nil {
		logger.FromContext(ctx, m.logger).Error("job record not saved, remote folder orphaned",
			"anomaly", true,
			"user_id", user.ID,
			"remote_folder", folder,
			"error", err,
		)
		return nil, persistenceError(err)
	}

	m.record(ctx, "create")
	logger.FromContext(ctx, m.logger).Info("job created", "job_id", job.ID, "remote_folder", folder)
	return job, nil
}

// WriteScript renders spec into the job's batch script. Only allowed before launch.
func (m *Manager) WriteScript(ctx context.Context, id auth.Identity, jobID string, spec ScriptSpec) (err error) {
	ctx, end := m.span(ctx, "WriteScript")
	defer end(&err)

	job, err := m.ownedJob(ctx, id, jobID)
	if err != nil {
		return err
	}
	if job.State != store.JobStateCreated {
		return newError(CodeAlreadyLaunched, "job already launched", nil)
	}

	script, err := RenderScript(spec, job.RemoteFolder)
	if err != nil {
		return err
	}
	if err := m.remote.Upload(ctx, m.cfg.Machine, job.RemoteFolder, m.cfg.JobScript, script); err != nil {
		return remoteError(CodeRemoteOperationFailed, err)
	}
	return nil
}

// LaunchJob submits the job script and moves the job to ACTIVATED. A failed
// submit leaves the job in CREATED so the caller may retry.
func (m *Manager) LaunchJob(ctx context.Context, id auth.Identity, jobID string) (job *store.Job, err error) {
	ctx, end := m.span(ctx, "LaunchJob")
	defer end(&err)

	job, err = m.ownedJob(ctx, id, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != store.JobStateCreated {
		return nil, newError(CodeAlreadyLaunched, "job already launched", nil)
	}

	if m.cfg.VerifyScript {
		if err := m.checkScript(ctx, job.RemoteFolder); err != nil {
			return nil, err
		}
	}

	remoteJobID, err := m.remote.Submit(ctx, m.cfg.Machine, path.Join(job.RemoteFolder, m.cfg.JobScript))
	if err != nil {
		return nil, remoteError(CodeRemoteSubmitFailed, err)
	}

	log := logger.FromContext(ctx, m.logger).With("job_id", job.ID, "remote_job_id", remoteJobID)

	updated, err := m.jobs.UpdateJob(ctx, job.ID, remoteJobID)
	switch {
	case err == nil:
		m.record(ctx, "launch")
		log.Info("job launched")
		return updated, nil

	case errors.Is(err, store.ErrStateConflict):
		// A concurrent launch won the transition; withdraw our submission.
		log.Error("duplicate submission for already launched job", "anomaly", true)
		if cerr := m.remote.Cancel(context.WithoutCancel(ctx), m.cfg.Machine, remoteJobID); cerr != nil {
			log.Error("failed to cancel duplicate submission", "anomaly", true, "error", cerr)
		}
		return nil, newError(CodeAlreadyLaunched, "job already launched", nil)

	case errors.Is(err, store.ErrNotFound):
		log.Error("job deleted while launching, remote job untracked", "anomaly", true)
		return nil, newError(CodeJobNotFound, fmt.Sprintf("job %s not found", job.ID), nil)

	default:
		log.Error("launch not recorded, remote job untracked", "anomaly", true, "error", err)
		return nil, persistenceError(err)
	}
}

func (m *Manager) checkScript(ctx context.Context, folder string) error {
	files, err := m.remote.ListFiles(ctx, m.cfg.Machine, folder)
	if err != nil {
		return remoteError(CodeRemoteOperationFailed, err)
	}
	for _, f := range files {
		if f.Name == m.cfg.JobScript {
			return nil
		}
	}
	return newError(CodeScriptNotUploaded,
		fmt.Sprintf("%s is missing from the job folder", m.cfg.JobScript), nil)
}

// CancelJob asks the scheduler to cancel a launched job. The local state is
// left untouched: live status is always read from the scheduler.
func (m *Manager) CancelJob(ctx context.Context, id auth.Identity, jobID string) (job *store.Job, err error) {
	ctx, end := m.span(ctx, "CancelJob")
	defer end(&err)

	job, err = m.ownedJob(ctx, id, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != store.JobStateActivated || job.RemoteJobID == nil {
		return nil, newError(CodeNotYetLaunched, "job has not been launched yet", nil)
	}

	if err := m.remote.Cancel(ctx, m.cfg.Machine, *job.RemoteJobID); err != nil {
		return nil, remoteError(CodeRemoteCancelFailed, err)
	}

	m.record(ctx, "cancel")
	logger.FromContext(ctx, m.logger).Info("job cancel requested", "job_id", job.ID, "remote_job_id", *job.RemoteJobID)
	return job, nil
}

// JobState returns one job of the caller with its live status.
func (m *Manager) JobState(ctx context.Context, id auth.Identity, jobID string) (status *JobStatus, err error) {
	ctx, end := m.span(ctx, "JobState")
	defer end(&err)

	job, err := m.ownedJob(ctx, id, jobID)
	if err != nil {
		return nil, err
	}
	statuses, err := m.liveStatuses(ctx, []store.Job{*job})
	if err != nil {
		return nil, err
	}
	return &JobStatus{Job: job, Status: statuses[job.ID]}, nil
}

// ListJobs maps each of the caller's job ids to its live status, using one
// batched poll for all launched jobs.
func (m *Manager) ListJobs(ctx context.Context, id auth.Identity) (statuses map[string]string, err error) {
	ctx, end := m.span(ctx, "ListJobs")
	defer end(&err)

	user, err := m.User(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := m.jobs.ListJobs(ctx, user.ID)
	if err != nil {
		return nil, persistenceError(err)
	}
	return m.liveStatuses(ctx, jobs)
}

func (m *Manager) liveStatuses(ctx context.Context, jobs []store.Job) (map[string]string, error) {
	statuses := make(map[string]string, len(jobs))
	var remoteIDs []string
	for _, j := range jobs {
		if j.Launched() {
			remoteIDs = append(remoteIDs, *j.RemoteJobID)
		} else {
			statuses[j.ID] = StatusNotLaunched
		}
	}
	if len(remoteIDs) == 0 {
		return statuses, nil
	}

	live, err := m.remote.Poll(ctx, m.cfg.Machine, remoteIDs)
	if err != nil {
		return nil, remoteError(CodeRemoteOperationFailed, err)
	}
	for _, j := range jobs {
		if !j.Launched() {
			continue
		}
		if s, ok := live[*j.RemoteJobID]; ok && s != "" {
			statuses[j.ID] = s
		} else {
			statuses[j.ID] = StatusUnknown
		}
	}
	return statuses, nil
}

// DeleteJob detaches the job record. The remote folder is kept. Unknown or
// foreign job ids are ignored.
func (m *Manager) DeleteJob(ctx context.Context, id auth.Identity, jobID string) (err error) {
	ctx, end := m.span(ctx, "DeleteJob")
	defer end(&err)

	job, err := m.ownedJob(ctx, id, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.jobs.DeleteJob(ctx, job.ID); err != nil {
		return persistenceError(err)
	}

	m.record(ctx, "delete")
	logger.FromContext(ctx, m.logger).Info("job detached", "job_id", job.ID, "remote_folder", job.RemoteFolder)
	return nil
}
