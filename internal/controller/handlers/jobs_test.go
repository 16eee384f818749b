package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hpcgateway/internal/gateway"
	"hpcgateway/internal/remote"
	"hpcgateway/internal/store"
	"hpcgateway/pkg/api"
)

const testJobID = "6f1c1a4e-9d1b-4a53-9a0e-2b7f3c1d0e11"

func strPtr(s string) *string { return &s }

func TestCreateJob(t *testing.T) {
	tests := []struct {
		name           string
		mockSetup      func(*mockLifecycle)
		expectedStatus int
		expectedInBody string
	}{
		{
			name: "Success",
			mockSetup: func(m *mockLifecycle) {
				m.job = &store.Job{ID: testJobID, State: store.JobStateCreated}
			},
			expectedStatus: http.StatusOK,
			expectedInBody: `"jobid":"` + testJobID + `"`,
		},
		{
			name: "User Not Registered",
			mockSetup: func(m *mockLifecycle) {
				m.jobErr = gateway.ErrUserNotRegistered
			},
			expectedStatus: http.StatusNotFound,
			expectedInBody: "UserNotRegistered",
		},
		{
			name: "Folder Creation Failure",
			mockSetup: func(m *mockLifecycle) {
				m.jobErr = &gateway.Error{
					Kind:    gateway.KindRemote,
					Code:    gateway.CodeRemoteFolderCreationFailed,
					Op:      remote.OpMkdir,
					Message: "quota exceeded",
				}
			},
			expectedStatus: http.StatusBadGateway,
			expectedInBody: "mkdir: quota exceeded",
		},
		{
			name: "Persistence Failure",
			mockSetup: func(m *mockLifecycle) {
				m.jobErr = errors.New("insert failed")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedInBody: "Internal database error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockLifecycle{}
			tt.mockSetup(mock)
			h := newTestHandlers(mock, nil)

			req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/job/create", nil))
			rr := httptest.NewRecorder()
			h.CreateJob(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("handler returned unexpected body: got %v want substring %v", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestCreateJob_NoIdentity(t *testing.T) {
	h := newTestHandlers(nil, nil)

	rr := httptest.NewRecorder()
	h.CreateJob(rr, httptest.NewRequest(http.MethodPost, "/api/v1/job/create", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLaunchJob(t *testing.T) {
	tests := []struct {
		name           string
		jobErr         error
		expectedStatus int
		expectedInBody string
	}{
		{"Success", nil, http.StatusOK, testJobID},
		{"Already Launched", gateway.ErrAlreadyLaunched, http.StatusConflict, "AlreadyLaunched"},
		{"Not Found", gateway.ErrJobNotFound, http.StatusNotFound, "JobNotFound"},
		{"Script Missing", gateway.ErrScriptNotUploaded, http.StatusNotFound, "ScriptNotUploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockLifecycle{
				job:    &store.Job{ID: testJobID, State: store.JobStateActivated, RemoteJobID: strPtr("00001")},
				jobErr: tt.jobErr,
			}
			h := newTestHandlers(mock, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/job/launch/"+testJobID, nil)
			req.SetPathValue("jobid", testJobID)
			rr := httptest.NewRecorder()
			h.LaunchJob(rr, withIdentity(req))

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
			if mock.capturedJobID != testJobID {
				t.Errorf("manager got job id %q, want %q", mock.capturedJobID, testJobID)
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name           string
		jobErr         error
		expectedStatus int
		expectedInBody string
	}{
		{"Success", nil, http.StatusOK, "Job cancelled"},
		{"Not Yet Launched", gateway.ErrNotYetLaunched, 505, "NotYetLaunched"},
		{
			"Remote Failure",
			&gateway.Error{Kind: gateway.KindRemote, Code: gateway.CodeRemoteCancelFailed, Op: remote.OpCancel, Message: "invalid job id"},
			http.StatusBadGateway,
			"RemoteCancelFailed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockLifecycle{job: &store.Job{ID: testJobID}, jobErr: tt.jobErr}
			h := newTestHandlers(mock, nil)

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/job/cancel/"+testJobID, nil)
			req.SetPathValue("jobid", testJobID)
			rr := httptest.NewRecorder()
			h.CancelJob(rr, withIdentity(req))

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
		})
	}
}

func TestListJobs(t *testing.T) {
	mock := &mockLifecycle{jobs: map[string]string{
		testJobID: "RUNNING",
		"other":   gateway.StatusNotLaunched,
	}}
	h := newTestHandlers(mock, nil)

	rr := httptest.NewRecorder()
	h.ListJobs(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/job/", nil)))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	var resp api.ListJobsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Jobs[testJobID] != "RUNNING" || resp.Jobs["other"] != "NOT_LAUNCHED" {
		t.Errorf("unexpected jobs %v", resp.Jobs)
	}
}

func TestGetJobState(t *testing.T) {
	mock := &mockLifecycle{status: &gateway.JobStatus{
		Job:    &store.Job{ID: testJobID, State: store.JobStateActivated, RemoteJobID: strPtr("00001")},
		Status: "COMPLETED",
	}}
	h := newTestHandlers(mock, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/job/state/"+testJobID, nil)
	req.SetPathValue("jobid", testJobID)
	rr := httptest.NewRecorder()
	h.GetJobState(rr, withIdentity(req))

	var resp api.JobStateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "ACTIVATED" || resp.Status != "COMPLETED" || resp.RemoteJobID == nil || *resp.RemoteJobID != "00001" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDeleteJob(t *testing.T) {
	mock := &mockLifecycle{}
	h := newTestHandlers(mock, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/job/delete/"+testJobID, nil)
	req.SetPathValue("jobid", testJobID)
	rr := httptest.NewRecorder()
	h.DeleteJob(rr, withIdentity(req))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if mock.capturedJobID != testJobID {
		t.Errorf("manager got job id %q", mock.capturedJobID)
	}
}

func TestWriteJobScript(t *testing.T) {
	tests := []struct {
		name           string
		body           []byte
		scriptErr      error
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Success",
			body:           []byte(`{"image":"sim.sif","command":"./run","nodes":2,"time":"02:00:00"}`),
			expectedStatus: http.StatusOK,
			expectedInBody: "Job script written",
		},
		{
			name:           "Invalid JSON",
			body:           []byte(`{invalid-json}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid request body",
		},
		{
			name:           "Rejected Spec",
			body:           []byte(`{"image":"","command":""}`),
			scriptErr:      &gateway.Error{Kind: gateway.KindValidation, Code: gateway.CodeInvalidInput, Message: "image is required"},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "image is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockLifecycle{scriptErr: tt.scriptErr}
			h := newTestHandlers(mock, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/job/script/"+testJobID, bytes.NewReader(tt.body))
			req.SetPathValue("jobid", testJobID)
			rr := httptest.NewRecorder()
			h.WriteJobScript(rr, withIdentity(req))

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
		})
	}
}

func TestWriteJobScript_PassesSpec(t *testing.T) {
	mock := &mockLifecycle{}
	h := newTestHandlers(mock, nil)

	body := `{"image":"sim.sif","command":"./run","nodes":2,"ntasks_per_node":4,"time":"02:00:00","partition":"debug","modules":["gcc"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/job/script/"+testJobID, strings.NewReader(body))
	req.SetPathValue("jobid", testJobID)
	h.WriteJobScript(httptest.NewRecorder(), withIdentity(req))

	want := gateway.ScriptSpec{
		Image: "sim.sif", Command: "./run", Nodes: 2, TasksPerNode: 4,
		TimeLimit: "02:00:00", Partition: "debug", Modules: []string{"gcc"},
	}
	got := mock.capturedSpec
	if got.Image != want.Image || got.Command != want.Command || got.Nodes != want.Nodes ||
		got.TasksPerNode != want.TasksPerNode || got.TimeLimit != want.TimeLimit ||
		got.Partition != want.Partition || len(got.Modules) != 1 || got.Modules[0] != "gcc" {
		t.Errorf("spec = %+v, want %+v", got, want)
	}
}
