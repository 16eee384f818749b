package gateway

import (
	"errors"
	"fmt"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/remote"
)

// Kind groups error codes into the classes callers branch on.
type Kind string

const (
	KindAuthentication    Kind = "authentication"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindRemote            Kind = "remote_operation"
	KindPersistence       Kind = "persistence"
	KindValidation        Kind = "validation"
	KindThrottled         Kind = "throttled"
)

// Code is the specific failure reported in the "error" field of API responses.
type Code string

const (
	CodeMissingToken        Code = "MissingToken"
	CodeInvalidToken        Code = "InvalidToken"
	CodeUpstreamUnavailable Code = "UpstreamUnavailable"
	CodeAccessDenied        Code = "AccessDenied"

	CodeUserNotRegistered Code = "UserNotRegistered"
	CodeJobNotFound       Code = "JobNotFound"
	CodeScriptNotUploaded Code = "ScriptNotUploaded"

	CodeAlreadyLaunched Code = "AlreadyLaunched"
	CodeNotYetLaunched  Code = "NotYetLaunched"

	CodeRemoteFolderCreationFailed Code = "RemoteFolderCreationFailed"
	CodeRemoteSubmitFailed         Code = "RemoteSubmitFailed"
	CodeRemoteCancelFailed         Code = "RemoteCancelFailed"
	CodeRemoteOperationFailed      Code = "RemoteOperationFailed"

	CodePersistenceFailed Code = "PersistenceFailed"
	CodeInvalidInput      Code = "InvalidInput"

	CodeRateLimited Code = "RateLimited"
)

var codeKinds = map[Code]Kind{
	CodeMissingToken:               KindAuthentication,
	CodeInvalidToken:               KindAuthentication,
	CodeUpstreamUnavailable:        KindAuthentication,
	CodeAccessDenied:               KindAuthentication,
	CodeUserNotRegistered:          KindNotFound,
	CodeJobNotFound:                KindNotFound,
	CodeScriptNotUploaded:          KindNotFound,
	CodeAlreadyLaunched:            KindInvalidTransition,
	CodeNotYetLaunched:             KindInvalidTransition,
	CodeRemoteFolderCreationFailed: KindRemote,
	CodeRemoteSubmitFailed:         KindRemote,
	CodeRemoteCancelFailed:         KindRemote,
	CodeRemoteOperationFailed:      KindRemote,
	CodePersistenceFailed:          KindPersistence,
	CodeInvalidInput:               KindValidation,
	CodeRateLimited:                KindThrottled,
}

// Error is the single error type returned by Manager and Relay.
type Error struct {
	Kind    Kind
	Code    Code
	Op      string // failing remote operation, if any
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrUserNotRegistered = &Error{Kind: KindNotFound, Code: CodeUserNotRegistered}
	ErrJobNotFound       = &Error{Kind: KindNotFound, Code: CodeJobNotFound}
	ErrScriptNotUploaded = &Error{Kind: KindNotFound, Code: CodeScriptNotUploaded}
	ErrAlreadyLaunched   = &Error{Kind: KindInvalidTransition, Code: CodeAlreadyLaunched}
	ErrNotYetLaunched    = &Error{Kind: KindInvalidTransition, Code: CodeNotYetLaunched}
	ErrInvalidInput      = &Error{Kind: KindValidation, Code: CodeInvalidInput}
	ErrRateLimited       = &Error{Kind: KindThrottled, Code: CodeRateLimited, Message: "Too many requests, slow down"}
)

func newError(code Code, message string, err error) *Error {
	return &Error{Kind: codeKinds[code], Code: code, Message: message, Err: err}
}

// remoteError wraps a remote client failure, keeping the failing operation
// name and the facade's message.
func remoteError(code Code, err error) *Error {
	e := newError(code, "remote operation failed", err)
	var opErr *remote.OperationError
	if errors.As(err, &opErr) {
		e.Op = opErr.Op
		e.Message = opErr.Message
		e.Err = opErr.Err
	}
	return e
}

func persistenceError(err error) *Error {
	return newError(CodePersistenceFailed, "persistence failed", err)
}

// FromAuth converts an Identity Resolver failure into an *Error.
func FromAuth(err error) *Error {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return newError(CodeMissingToken, "Authentication Token is missing!", err)
	case errors.Is(err, auth.ErrAccessDenied):
		return newError(CodeAccessDenied, "Access denied for this account", err)
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		return newError(CodeUpstreamUnavailable, "Identity provider is unavailable", err)
	default:
		return newError(CodeInvalidToken, "Invalid Authentication token!", err)
	}
}

// AsError returns err as an *Error. Anything unclassified is reported as a
// persistence failure, the only other failure source of the core.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return persistenceError(err)
}
