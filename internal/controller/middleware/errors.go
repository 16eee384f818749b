package middleware

import (
	"encoding/json"
	"net/http"

	"hpcgateway/internal/gateway"
	"hpcgateway/pkg/api"
)

// StatusNotYetLaunched is the status code reported when cancelling a job that
// was never launched.
const StatusNotYetLaunched = 505

var codeStatus = map[gateway.Code]int{
	gateway.CodeMissingToken:               http.StatusUnauthorized,
	gateway.CodeInvalidToken:               http.StatusUnauthorized,
	gateway.CodeUpstreamUnavailable:        http.StatusServiceUnavailable,
	gateway.CodeAccessDenied:               http.StatusForbidden,
	gateway.CodeUserNotRegistered:          http.StatusNotFound,
	gateway.CodeJobNotFound:                http.StatusNotFound,
	gateway.CodeScriptNotUploaded:          http.StatusNotFound,
	gateway.CodeAlreadyLaunched:            http.StatusConflict,
	gateway.CodeNotYetLaunched:             StatusNotYetLaunched,
	gateway.CodeRemoteFolderCreationFailed: http.StatusBadGateway,
	gateway.CodeRemoteSubmitFailed:         http.StatusBadGateway,
	gateway.CodeRemoteCancelFailed:         http.StatusBadGateway,
	gateway.CodeRemoteOperationFailed:      http.StatusBadGateway,
	gateway.CodePersistenceFailed:          http.StatusInternalServerError,
	gateway.CodeInvalidInput:               http.StatusBadRequest,
	gateway.CodeRateLimited:                http.StatusTooManyRequests,
}

// StatusFor returns the HTTP status reported for code.
func StatusFor(code gateway.Code) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteError renders err as the standard error body.
func WriteError(w http.ResponseWriter, err error) {
	e := gateway.AsError(err)

	message := e.Message
	if message == "" {
		message = string(e.Code)
	}
	if e.Op != "" {
		message = e.Op + ": " + message
	}
	if e.Kind == gateway.KindPersistence {
		// Store errors may carry connection details.
		message = "Internal database error"
	}

	writeErrorBody(w, StatusFor(e.Code), message, string(e.Code))
}

func writeErrorBody(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Message: message,
		Error:   code,
	})
}
