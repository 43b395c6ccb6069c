// Package transport defines the asynchronous control channel between
// the engine and the PBX: an event stream consumed by the call
// registry and an imperative command surface used by the phases.
package transport

import (
	"context"
	"time"
)

// EventType tags PBX events.
type EventType string

const (
	EventAnswered EventType = "answered"
	EventHangup   EventType = "hangup"
	EventDTMF     EventType = "dtmf"
)

// Event is one asynchronous PBX notification.
type Event struct {
	Type   EventType
	CallID string
	Digit  string // DTMF only
	At     time.Time
}

// Frame is one chunk of live caller audio, used for voice-activity
// decisions during playback (barge-in) and recording (silence stop).
type Frame struct {
	PCM []int16
	At  time.Time
}

// Recording describes a finished capture.
type Recording struct {
	AudioRef string
	Duration time.Duration
}

// Transport is the PBX command surface. Every method is a blocking
// operation from the caller's point of view and honors its context.
type Transport interface {
	// Originate places an outbound call and returns its call ID. The
	// answered (or hangup) event arrives on Events.
	Originate(ctx context.Context, number, callerID string) (string, error)

	// Play starts prompt playback and blocks until it completes, the
	// context is cancelled, or StopPlayback interrupts it.
	Play(ctx context.Context, callID, audioRef string) error

	// StopPlayback interrupts an in-flight Play.
	StopPlayback(ctx context.Context, callID string) error

	// StartRecording begins capturing caller audio.
	StartRecording(ctx context.Context, callID string) error

	// StopRecording ends the capture and returns its reference.
	StopRecording(ctx context.Context, callID string) (Recording, error)

	// Frames exposes live caller audio for the given call. The channel
	// closes when the call ends.
	Frames(callID string) <-chan Frame

	// Hangup ends the call.
	Hangup(ctx context.Context, callID string) error

	// Events is the asynchronous PBX event stream.
	Events() <-chan Event
}
