package handlers

import (
	"encoding/json"
	"net/http"

	"hpcgateway/internal/gateway"
	"hpcgateway/pkg/api"
)

// ListJobs handles GET /api/v1/job/.
// Each job id maps to its live status on the cluster.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	jobs, err := h.jobs.ListJobs(r.Context(), id)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ListJobsResponse{Jobs: jobs})
}

// GetJobState handles GET /api/v1/job/state/{jobid}.
func (h *Handlers) GetJobState(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	st, err := h.jobs.JobState(r.Context(), id, r.PathValue("jobid"))
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.JobStateResponse{
		JobID:       st.Job.ID,
		State:       string(st.Job.State),
		RemoteJobID: st.Job.RemoteJobID,
		Status:      st.Status,
	})
}

// CreateJob handles POST /api/v1/job/create.
// It creates the job folder on the cluster, then records the job.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), id)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.JobResponse{JobID: job.ID})
}

// WriteJobScript handles POST /api/v1/job/script/{jobid}.
// It renders a Slurm script for a containerised run into the job folder.
func (h *Handlers) WriteJobScript(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req api.JobScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, &gateway.Error{Kind: gateway.KindValidation, Code: gateway.CodeInvalidInput, Message: "Invalid request body"})
		return
	}

	jobID := r.PathValue("jobid")
	err := h.jobs.WriteScript(r.Context(), id, jobID, gateway.ScriptSpec{
		Image:        req.Image,
		Command:      req.Command,
		Nodes:        req.Nodes,
		TasksPerNode: req.TasksPerNode,
		TimeLimit:    req.Time,
		Partition:    req.Partition,
		Modules:      req.Modules,
	})
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.JobScriptResponse{JobID: jobID, Message: "Job script written"})
}

// LaunchJob handles POST /api/v1/job/launch/{jobid}.
func (h *Handlers) LaunchJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.LaunchJob(r.Context(), id, r.PathValue("jobid"))
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.JobResponse{JobID: job.ID})
}

// CancelJob handles DELETE /api/v1/job/cancel/{jobid}.
// A job that was never launched yields 505.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if _, err := h.jobs.CancelJob(r.Context(), id, r.PathValue("jobid")); err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{Message: "Job cancelled"})
}

// DeleteJob handles DELETE /api/v1/job/delete/{jobid}.
// Only the record is removed; the job folder stays on the cluster.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.jobs.DeleteJob(r.Context(), id, r.PathValue("jobid")); err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{Message: "Job deleted"})
}
