package gateway

import (
	"context"
	"path"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/remote"
)

// Relay moves file bytes between API callers and a job's remote folder.
// Transfers are fully buffered.
type Relay struct {
	m *Manager
}

// NewRelay returns a relay that resolves jobs through m.
func NewRelay(m *Manager) *Relay {
	return &Relay{m: m}
}

// List returns the entries of the job folder.
func (r *Relay) List(ctx context.Context, id auth.Identity, jobID string) ([]remote.FileInfo, error) {
	job, err := r.m.ownedJob(ctx, id, jobID)
	if err != nil {
		return nil, err
	}
	files, err := r.m.remote.ListFiles(ctx, r.m.cfg.Machine, job.RemoteFolder)
	if err != nil {
		return nil, remoteError(CodeRemoteOperationFailed, err)
	}
	return files, nil
}

// Upload stores data as filename in the job folder.
func (r *Relay) Upload(ctx context.Context, id auth.Identity, jobID, filename string, data []byte) error {
	name, err := SafeFilename(filename)
	if err != nil {
		return err
	}
	job, err := r.m.ownedJob(ctx, id, jobID)
	if err != nil {
		return err
	}
	if err := r.m.remote.Upload(ctx, r.m.cfg.Machine, job.RemoteFolder, name, data); err != nil {
		return remoteError(CodeRemoteOperationFailed, err)
	}
	return nil
}

// Download returns the contents of filename from the job folder.
func (r *Relay) Download(ctx context.Context, id auth.Identity, jobID, filename string) ([]byte, error) {
	name, err := SafeFilename(filename)
	if err != nil {
		return nil, err
	}
	job, err := r.m.ownedJob(ctx, id, jobID)
	if err != nil {
		return nil, err
	}
	data, err := r.m.remote.Download(ctx, r.m.cfg.Machine, path.Join(job.RemoteFolder, name))
	if err != nil {
		return nil, remoteError(CodeRemoteOperationFailed, err)
	}
	return data, nil
}

// Delete removes filename from the job folder.
func (r *Relay) Delete(ctx context.Context, id auth.Identity, jobID, filename string) error {
	name, err := SafeFilename(filename)
	if err != nil {
		return err
	}
	job, err := r.m.ownedJob(ctx, id, jobID)
	if err != nil {
		return err
	}
	if err := r.m.remote.Delete(ctx, r.m.cfg.Machine, path.Join(job.RemoteFolder, name)); err != nil {
		return remoteError(CodeRemoteOperationFailed, err)
	}
	return nil
}
