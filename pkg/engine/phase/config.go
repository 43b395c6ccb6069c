package phase

import (
	"time"
)

// Config carries the real-time budgets of the three phases. Every
// phase operation is bounded by one of these.
type Config struct {
	// SpeechStart is the continuous-speech duration after which the
	// caller is considered to have started talking.
	SpeechStart time.Duration

	// BargeInThreshold is the continuous-speech duration that triggers
	// a playback interruption.
	BargeInThreshold time.Duration

	// SmoothDelay elapses between the barge-in trigger and the stop
	// command, leaving room for a natural fade.
	SmoothDelay time.Duration

	// AMDSampleDuration is how long the greeting is recorded before
	// classification.
	AMDSampleDuration time.Duration

	// AMDMinConfidence downgrades weaker verdicts to unknown.
	AMDMinConfidence float64

	// SilenceThreshold ends the waiting phase once the caller has been
	// quiet this long after speaking.
	SilenceThreshold time.Duration

	// WaitTimeout is the hard bound of the waiting phase.
	WaitTimeout time.Duration

	// MinCaptureDuration: shorter captures are treated as silence and
	// never sent to transcription.
	MinCaptureDuration time.Duration
}

// DefaultConfig returns the production budget set.
func DefaultConfig() Config {
	return Config{
		SpeechStart:        400 * time.Millisecond,
		BargeInThreshold:   1500 * time.Millisecond,
		SmoothDelay:        500 * time.Millisecond,
		AMDSampleDuration:  3 * time.Second,
		AMDMinConfidence:   0.6,
		SilenceThreshold:   1500 * time.Millisecond,
		WaitTimeout:        10 * time.Second,
		MinCaptureDuration: 300 * time.Millisecond,
	}
}
