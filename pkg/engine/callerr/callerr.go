package callerr

import (
	"fmt"
)

// Error is the canonical error shape used across the engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrTransport covers failed PBX commands and a broken control channel.
	// Fatal for the affected call only.
	ErrTransport ErrorType = "transport_error"

	// ErrTranscription covers STT failures. Callers treat these as an
	// empty transcript, never as a call-fatal condition.
	ErrTranscription ErrorType = "transcription_error"

	// ErrScenarioValidation covers malformed scenario documents. Fatal at
	// load time; a call using the scenario cannot start.
	ErrScenarioValidation ErrorType = "scenario_validation_error"

	// ErrNoRoute means a step has neither an intent-specific nor a
	// wildcard transition for the classified intent.
	ErrNoRoute ErrorType = "no_route_error"

	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrNotFound       ErrorType = "not_found_error"
)

// NewTransportError creates a transport error bound to a call.
func NewTransportError(callID, message string) *Error {
	return &Error{Type: ErrTransport, Message: message, CallID: callID}
}

// NewTranscriptionError creates a transcription error bound to a call.
func NewTranscriptionError(callID, message string) *Error {
	return &Error{Type: ErrTranscription, Message: message, CallID: callID}
}

// NewScenarioValidationError creates a scenario validation error.
// Param names the offending step or field.
func NewScenarioValidationError(message, param string) *Error {
	return &Error{Type: ErrScenarioValidation, Message: message, Param: param}
}

// NewNoRouteError creates a routing error for a step/intent pair.
func NewNoRouteError(step, intent string) *Error {
	return &Error{
		Type:    ErrNoRoute,
		Message: fmt.Sprintf("step %q has no transition for intent %q and no wildcard", step, intent),
		Param:   step,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}
