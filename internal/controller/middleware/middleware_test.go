package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hpcgateway/internal/gateway"
	"hpcgateway/internal/logger"
	"hpcgateway/internal/remote"
	"hpcgateway/pkg/api"
)

func TestRequestLogger_GeneratesID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/job/", nil))

	if seen == "" {
		t.Fatal("expected a request id in the handler context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q, want %q", got, seen)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["request_id"] != seen {
		t.Errorf("logged request_id %v, want %q", entry["request_id"], seen)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("logged status %v, want %d", entry["status"], http.StatusTeapot)
	}
}

func TestRequestLogger_HonoursClientID(t *testing.T) {
	handler := RequestLogger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logger.RequestIDFromContext(r.Context()); got != "abc-123" {
			t.Errorf("request id %q, want abc-123", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRecover(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rr.Body.String(), `"data":null`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "not yet launched",
			err:         gateway.ErrNotYetLaunched,
			wantStatus:  505,
			wantCode:    "NotYetLaunched",
			wantMessage: "NotYetLaunched",
		},
		{
			name:       "already launched",
			err:        gateway.ErrAlreadyLaunched,
			wantStatus: http.StatusConflict,
			wantCode:   "AlreadyLaunched",
		},
		{
			name: "remote failure keeps operation",
			err: &gateway.Error{
				Kind:    gateway.KindRemote,
				Code:    gateway.CodeRemoteSubmitFailed,
				Op:      remote.OpSubmit,
				Message: "sbatch: invalid partition",
			},
			wantStatus:  http.StatusBadGateway,
			wantCode:    "RemoteSubmitFailed",
			wantMessage: "submit: sbatch: invalid partition",
		},
		{
			name:        "unclassified error hides details",
			err:         errors.New("pq: password authentication failed"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "PersistenceFailed",
			wantMessage: "Internal database error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
			var body api.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("got code %q, want %q", body.Error, tt.wantCode)
			}
			if tt.wantMessage != "" && body.Message != tt.wantMessage {
				t.Errorf("got message %q, want %q", body.Message, tt.wantMessage)
			}
		})
	}
}
