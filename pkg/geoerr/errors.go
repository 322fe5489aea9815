// Package geoerr defines the error taxonomy of the geospatial query pipeline.
// Every failure carries a Kind, a short user-facing message and recovery
// guidance; the wrapped cause is kept for logs only.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry decisions and user messaging.
type Kind string

const (
	KindConfiguration         Kind = "configuration"
	KindValidation            Kind = "validation"
	KindNoTool                Kind = "no_tool"
	KindConnection            Kind = "connection"
	KindInvocationTransient   Kind = "invocation_transient"
	KindInvocationApplication Kind = "invocation_application"
	KindNormalization         Kind = "normalization"
	KindCanceled              Kind = "canceled"
	KindInternal              Kind = "internal"
)

// User-facing messages. The no-tool and connection messages are matched
// verbatim by callers of the orchestrator.
const (
	MsgUnavailable      = "geospatial functionality unavailable"
	MsgNoSuitableTool   = "no suitable tool"
	MsgConnectionFailed = "connection failed"
	MsgServiceTimeout   = "mapping service did not respond"
	MsgUnexpectedFormat = "unexpected response format"
	MsgCanceled         = "request canceled"
	MsgInternal         = "internal error"
)

// Common guidance messages
const (
	GuidanceConfiguration = "Set SMITHERY_API_KEY, SMITHERY_PROFILE_ID and MAPBOX_ACCESS_TOKEN and restart."
	GuidanceValidation    = "Correct the query parameters and try again."
	GuidanceNoTool        = "The mapping service does not offer a tool for this kind of question."
	GuidanceNetworkError  = "Check your internet connection and try again."
	GuidanceRetryLater    = "The mapping service is busy. Please try again in a few seconds."
	GuidanceDataError     = "The data received was incomplete or malformed. Try rephrasing the location."
	GuidanceGeneral       = "Please try again later or modify your request."
)

// Error is a classified pipeline failure.
type Error struct {
	Kind     Kind   // Failure class
	Op       string // Operation that failed, e.g. "connect" or "invoke mapbox_geocoding"
	Message  string // Short human-readable sentence safe to show to end users
	Guidance string // How the user can recover
	Err      error  // Underlying cause, for logs
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt by the
// retry policy. Only transport-level invocation failures qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindInvocationTransient
}

// New creates an Error with guidance inferred from kind.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Message:  message,
		Guidance: guidanceFor(kind),
		Err:      cause,
	}
}

func guidanceFor(kind Kind) string {
	switch kind {
	case KindConfiguration:
		return GuidanceConfiguration
	case KindValidation:
		return GuidanceValidation
	case KindNoTool:
		return GuidanceNoTool
	case KindConnection:
		return GuidanceNetworkError
	case KindInvocationTransient:
		return GuidanceRetryLater
	case KindNormalization:
		return GuidanceDataError
	default:
		return GuidanceGeneral
	}
}

// Configuration reports missing or invalid settings.
func Configuration(message string, cause error) *Error {
	return New(KindConfiguration, "config", message, cause)
}

// Validation reports an invalid query.
func Validation(message string) *Error {
	return New(KindValidation, "validate", message, nil)
}

// NoTool reports that no remote tool can serve the query.
func NoTool(cause error) *Error {
	return New(KindNoTool, "select", MsgNoSuitableTool, cause)
}

// Connection reports a connect-time transport, auth or timeout failure.
func Connection(cause error) *Error {
	return New(KindConnection, "connect", MsgConnectionFailed, cause)
}

// Transient reports a timeout or transport failure during a tool call.
func Transient(tool string, cause error) *Error {
	return New(KindInvocationTransient, "invoke "+tool, MsgServiceTimeout, cause)
}

// Application reports a well-formed error payload from the remote tool.
// The service message is surfaced verbatim.
func Application(tool, serviceMessage string) *Error {
	if serviceMessage == "" {
		serviceMessage = "Unknown error from mapping service"
	}
	return New(KindInvocationApplication, "invoke "+tool, serviceMessage, nil)
}

// Normalization reports a reply whose shape matched no known pattern.
func Normalization(cause error) *Error {
	return New(KindNormalization, "normalize", MsgUnexpectedFormat, cause)
}

// KindOf returns the Kind of err, KindCanceled for context errors and
// KindInternal for anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if isContextErr(err) {
		return KindCanceled
	}
	return KindInternal
}

// UserMessage returns the end-user sentence for err. Unclassified errors
// never leak their text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if isContextErr(err) {
		return MsgCanceled
	}
	return MsgInternal
}
