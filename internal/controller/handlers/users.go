package handlers

import (
	"net/http"

	"hpcgateway/pkg/api"
)

// CreateUser handles POST /api/v1/user/create.
// It registers the caller and creates their home folder on the cluster.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	user, err := h.jobs.RegisterUser(r.Context(), id)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.CreateUserResponse{
		Home:    user.Home,
		Message: "User created",
	})
}

// GetUser handles GET /api/v1/user/.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	user, err := h.jobs.User(r.Context(), id)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.UserResponse{
		Email:   user.Email,
		Name:    user.Name,
		Home:    user.Home,
		Message: "successfully retrieved user",
	})
}

// Heartbeat handles GET /api/v1/heartbeat by listing the caller's home.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	files, err := h.jobs.Heartbeat(r.Context(), id)
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.HeartbeatResponse{
		Output:  toAPIFiles(files),
		Message: "Cluster is reachable",
	})
}
