// Package vad implements a frame-based voice-activity detector. The
// detector runs over raw PCM frames delivered by the transport; it
// replaces the old trick of inferring speech from recording-file
// growth, which could not distinguish speech from line noise.
package vad

import (
	"math"
)

// Detector classifies PCM frames as speech or silence using RMS
// energy with hysteresis, so the decision does not flicker at the
// threshold. Not safe for concurrent use; each call phase owns one.
type Detector struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// New returns a Detector tuned for 16kHz 20ms telephony frames.
func New() *Detector {
	return &Detector{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,  // ~60ms to enter speech
		silenceFrames:    25, // ~500ms to leave it
	}
}

// ProcessFrame consumes one frame and reports whether the detector is
// currently in speech.
func (d *Detector) ProcessFrame(pcm []int16) bool {
	level := rms(pcm)

	if d.inSpeech {
		if level < d.silenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			if d.silenceCount >= d.silenceFrames {
				d.inSpeech = false
				d.silenceCount = 0
			}
		} else {
			d.silenceCount = 0
		}
		return d.inSpeech
	}

	if level >= d.speechThreshold {
		d.speechCount++
		d.silenceCount = 0
		if d.speechCount >= d.speechFrames {
			d.inSpeech = true
			d.speechCount = 0
		}
	} else {
		d.speechCount = 0
	}
	return d.inSpeech
}

// Reset clears all hysteresis state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
