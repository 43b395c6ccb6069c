package callerr

import (
	"errors"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := NewTransportError("call-1", "originate failed")
	if got, want := e.Error(), "transport_error: originate failed"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	e.Code = "503"
	if got, want := e.Error(), "transport_error: originate failed (code: 503)"; got != want {
		t.Fatalf("Error() with code = %q, want %q", got, want)
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		typ    ErrorType
		param  string
		callID string
	}{
		{"transport", NewTransportError("c1", "down"), ErrTransport, "", "c1"},
		{"transcription", NewTranscriptionError("c2", "stt timeout"), ErrTranscription, "", "c2"},
		{"validation", NewScenarioValidationError("missing next", "q2"), ErrScenarioValidation, "q2", ""},
		{"no route", NewNoRouteError("q1", "deny"), ErrNoRoute, "q1", ""},
		{"not found", NewNotFoundError("scenario missing"), ErrNotFound, "", ""},
	}
	for _, tc := range cases {
		if tc.err.Type != tc.typ {
			t.Errorf("%s: type = %q, want %q", tc.name, tc.err.Type, tc.typ)
		}
		if tc.err.Param != tc.param {
			t.Errorf("%s: param = %q, want %q", tc.name, tc.err.Param, tc.param)
		}
		if tc.err.CallID != tc.callID {
			t.Errorf("%s: call ID = %q, want %q", tc.name, tc.err.CallID, tc.callID)
		}
	}
}

func TestErrorsAs(t *testing.T) {
	var wrapped error = NewNoRouteError("intro", "objection")
	var ce *Error
	if !errors.As(wrapped, &ce) {
		t.Fatal("errors.As failed to unwrap *Error")
	}
	if ce.Type != ErrNoRoute {
		t.Fatalf("unexpected type %q", ce.Type)
	}
}
