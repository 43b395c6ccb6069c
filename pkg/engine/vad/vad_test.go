package vad

import (
	"testing"
)

func frame(amplitude int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestEntersSpeechAfterConsecutiveLoudFrames(t *testing.T) {
	d := New()
	loud := frame(3000, 320)

	if d.ProcessFrame(loud) || d.ProcessFrame(loud) {
		t.Fatalf("two loud frames must not yet trigger speech")
	}
	if !d.ProcessFrame(loud) {
		t.Fatalf("third consecutive loud frame should enter speech")
	}
}

func TestSingleLoudFrameDoesNotTrigger(t *testing.T) {
	d := New()
	loud := frame(3000, 320)
	quiet := frame(0, 320)

	d.ProcessFrame(loud)
	d.ProcessFrame(quiet) // resets the run
	d.ProcessFrame(loud)
	if d.ProcessFrame(quiet) {
		t.Fatalf("interleaved noise must not enter speech")
	}
}

func TestHysteresisHoldsThroughShortPause(t *testing.T) {
	d := New()
	loud := frame(3000, 320)
	quiet := frame(0, 320)

	for i := 0; i < 3; i++ {
		d.ProcessFrame(loud)
	}
	// A few quiet frames are a pause inside speech, not its end.
	for i := 0; i < 5; i++ {
		if !d.ProcessFrame(quiet) {
			t.Fatalf("short pause ended speech at frame %d", i)
		}
	}
	// A long run of quiet frames ends it.
	for i := 0; i < 30; i++ {
		d.ProcessFrame(quiet)
	}
	if d.ProcessFrame(quiet) {
		t.Fatalf("sustained silence should leave speech")
	}
}

func TestReset(t *testing.T) {
	d := New()
	loud := frame(3000, 320)
	for i := 0; i < 3; i++ {
		d.ProcessFrame(loud)
	}
	d.Reset()
	if d.ProcessFrame(frame(0, 320)) {
		t.Fatalf("detector still in speech after Reset")
	}
}
