// Package phase implements the three real-time phases of a call on
// top of the transport abstraction: answering-machine detection,
// barge-in-aware playback, and silence-aware listening.
// Phases for one call run strictly sequentially; the only concurrency
// here is the barge-in monitor alongside a playback.
package phase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
	"github.com/voxflow-go/voxflow/pkg/engine/stt"
	"github.com/voxflow-go/voxflow/pkg/engine/transport"
	"github.com/voxflow-go/voxflow/pkg/engine/vad"
)

// Executor runs phases for any call; it holds no per-call state.
type Executor struct {
	transport   transport.Transport
	transcriber stt.Transcriber
	cfg         Config
	logger      *slog.Logger
	newDetector func() *vad.Detector

	humanKeywords   []string
	machineKeywords []string
}

// NewExecutor wires an Executor. A nil logger falls back to the
// default; detector construction can be overridden for tests.
func NewExecutor(t transport.Transport, tr stt.Transcriber, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		transport:       t,
		transcriber:     tr,
		cfg:             cfg,
		logger:          logger,
		newDetector:     vad.New,
		humanKeywords:   defaultHumanKeywords,
		machineKeywords: defaultMachineKeywords,
	}
}

// SetAMDKeywords replaces the default keyword sets.
func (e *Executor) SetAMDKeywords(human, machine []string) {
	e.humanKeywords = human
	e.machineKeywords = machine
}

// DetectAnsweringMachine records a short greeting sample, transcribes
// it, and classifies human versus machine. Transcription failures
// yield an unknown verdict, never an error: the call continues on the
// assumption a human answered.
func (e *Executor) DetectAnsweringMachine(ctx context.Context, callID string) (AMDResult, error) {
	if err := e.transport.StartRecording(ctx, callID); err != nil {
		return AMDResult{}, callerr.NewTransportError(callID, "start AMD recording: "+err.Error())
	}

	select {
	case <-time.After(e.cfg.AMDSampleDuration):
	case <-ctx.Done():
		_, _ = e.transport.StopRecording(context.WithoutCancel(ctx), callID)
		return AMDResult{}, ctx.Err()
	}

	rec, err := e.transport.StopRecording(ctx, callID)
	if err != nil {
		return AMDResult{}, callerr.NewTransportError(callID, "stop AMD recording: "+err.Error())
	}

	tr, err := e.transcriber.Transcribe(ctx, rec.AudioRef)
	if err != nil {
		e.logger.Warn("AMD transcription failed, assuming human", "call_id", callID, "error", err)
		return AMDResult{Verdict: AMDUnknown}, nil
	}

	res := classifyAMD(tr.Text, e.humanKeywords, e.machineKeywords, e.cfg.AMDMinConfidence)
	e.logger.Info("AMD verdict", "call_id", callID, "verdict", res.Verdict, "confidence", res.Confidence, "matched", res.Matched)
	return res, nil
}

// PlayResult reports how a playback ended.
type PlayResult struct {
	Interrupted    bool
	InterruptedAt  time.Duration
	SpeechDuration time.Duration
}

// Play starts prompt playback and blocks until it completes or, when
// barge-in is enabled, the monitor interrupts it.
func (e *Executor) Play(ctx context.Context, callID, audioRef string, bargeIn bool) (PlayResult, error) {
	if !bargeIn {
		if err := e.transport.Play(ctx, callID, audioRef); err != nil {
			return PlayResult{}, callerr.NewTransportError(callID, "play: "+err.Error())
		}
		return PlayResult{}, nil
	}

	started := time.Now()
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()

	monitorCh := make(chan BargeInResult, 1)
	go func() {
		monitorCh <- e.monitorBargeIn(monitorCtx, callID, started)
	}()

	playErrCh := make(chan error, 1)
	go func() {
		playErrCh <- e.transport.Play(ctx, callID, audioRef)
	}()

	select {
	case err := <-playErrCh:
		cancelMonitor()
		<-monitorCh
		if err != nil {
			return PlayResult{}, callerr.NewTransportError(callID, "play: "+err.Error())
		}
		return PlayResult{}, nil

	case res := <-monitorCh:
		if !res.Interrupted {
			// Frame stream ended; wait for playback to settle.
			err := <-playErrCh
			if err != nil {
				return PlayResult{}, callerr.NewTransportError(callID, "play: "+err.Error())
			}
			return PlayResult{}, nil
		}
		if err := e.transport.StopPlayback(ctx, callID); err != nil {
			e.logger.Warn("stop playback after barge-in failed", "call_id", callID, "error", err)
		}
		<-playErrCh // unblocked by the stop
		e.logger.Info("playback interrupted by caller",
			"call_id", callID, "at", res.At, "speech", res.SpeechDuration)
		return PlayResult{
			Interrupted:    true,
			InterruptedAt:  res.At,
			SpeechDuration: res.SpeechDuration,
		}, nil
	}
}

// WaitResult is the outcome of one listening phase.
type WaitResult struct {
	Transcript      string
	Confidence      float64
	Silence         bool
	CaptureDuration time.Duration
}

// WaitForReply records the caller until sustained silence follows
// their speech or the hard timeout expires. Captures shorter than the
// minimum, and captures with no detected speech, are reported as
// silence with an empty transcript and are never transcribed.
func (e *Executor) WaitForReply(ctx context.Context, callID string, timeout time.Duration) (WaitResult, error) {
	if timeout <= 0 {
		timeout = e.cfg.WaitTimeout
	}

	if err := e.transport.StartRecording(ctx, callID); err != nil {
		return WaitResult{}, callerr.NewTransportError(callID, "start recording: "+err.Error())
	}

	det := e.newDetector()
	frames := e.transport.Frames(callID)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	started := time.Now()
	var sawSpeech bool
	var lastSpeech time.Time

listen:
	for {
		select {
		case <-ctx.Done():
			_, _ = e.transport.StopRecording(context.WithoutCancel(ctx), callID)
			return WaitResult{}, ctx.Err()
		case <-deadline.C:
			break listen
		case f, ok := <-frames:
			if !ok {
				break listen
			}
			// Frames buffered before this listening phase began belong
			// to an earlier phase.
			if f.At.Before(started) {
				continue
			}
			if det.ProcessFrame(f.PCM) {
				sawSpeech = true
				lastSpeech = f.At
				continue
			}
			if sawSpeech && f.At.Sub(lastSpeech) >= e.cfg.SilenceThreshold {
				break listen
			}
		}
	}

	rec, err := e.transport.StopRecording(ctx, callID)
	if err != nil {
		return WaitResult{}, callerr.NewTransportError(callID, "stop recording: "+err.Error())
	}
	captured := rec.Duration
	if captured == 0 {
		captured = time.Since(started)
	}

	if !sawSpeech || captured < e.cfg.MinCaptureDuration {
		return WaitResult{Silence: true, CaptureDuration: captured}, nil
	}

	tr, err := e.transcriber.Transcribe(ctx, rec.AudioRef)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return WaitResult{}, err
		}
		e.logger.Warn("transcription failed, treating reply as silence", "call_id", callID, "error", err)
		return WaitResult{Silence: true, CaptureDuration: captured}, nil
	}
	if tr.Text == "" {
		return WaitResult{Silence: true, CaptureDuration: captured}, nil
	}
	return WaitResult{
		Transcript:      tr.Text,
		Confidence:      tr.Confidence,
		CaptureDuration: captured,
	}, nil
}
