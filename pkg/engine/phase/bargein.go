package phase

import (
	"context"
	"time"
)

// BargeInResult reports what the monitor observed during one playback.
type BargeInResult struct {
	Interrupted    bool
	At             time.Duration // elapsed playback time at interruption
	SpeechDuration time.Duration // continuous speech measured by the detector
}

// monitorBargeIn watches live audio while a prompt plays and returns
// once continuous caller speech crosses the barge-in threshold, after
// the smooth delay. It returns a zero result when the context is
// cancelled (playback finished first) or the frame stream closes.
func (e *Executor) monitorBargeIn(ctx context.Context, callID string, started time.Time) BargeInResult {
	det := e.newDetector()
	frames := e.transport.Frames(callID)

	var speechSince time.Time
	var continuous time.Duration
	announced := false

	for {
		select {
		case <-ctx.Done():
			return BargeInResult{SpeechDuration: continuous}
		case f, ok := <-frames:
			if !ok {
				return BargeInResult{SpeechDuration: continuous}
			}
			// The frame channel persists across phases; frames buffered
			// before this playback began belong to an earlier phase.
			if f.At.Before(started) {
				continue
			}
			if !det.ProcessFrame(f.PCM) {
				speechSince = time.Time{}
				continuous = 0
				announced = false
				continue
			}
			if speechSince.IsZero() {
				speechSince = f.At
			}
			continuous = f.At.Sub(speechSince)
			if !announced && continuous >= e.cfg.SpeechStart {
				announced = true
				e.logger.Debug("caller speech during playback", "call_id", callID, "continuous", continuous)
			}
			if continuous < e.cfg.BargeInThreshold {
				continue
			}
			// Trigger reached. Let the fade play out, then stop.
			select {
			case <-time.After(e.cfg.SmoothDelay):
			case <-ctx.Done():
			}
			return BargeInResult{
				Interrupted:    true,
				At:             time.Since(started),
				SpeechDuration: continuous,
			}
		}
	}
}
