package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/voxflow-go/voxflow/pkg/engine/call"
	"github.com/voxflow-go/voxflow/pkg/engine/phase"
)

type stubPhases struct {
	amdCalls, playCalls, waitCalls int
}

func (s *stubPhases) DetectAnsweringMachine(ctx context.Context, callID string) (phase.AMDResult, error) {
	s.amdCalls++
	return phase.AMDResult{Verdict: phase.AMDHuman}, nil
}

func (s *stubPhases) Play(ctx context.Context, callID, audioRef string, bargeIn bool) (phase.PlayResult, error) {
	s.playCalls++
	return phase.PlayResult{}, nil
}

func (s *stubPhases) WaitForReply(ctx context.Context, callID string, timeout time.Duration) (phase.WaitResult, error) {
	s.waitCalls++
	return phase.WaitResult{Transcript: "oui"}, nil
}

func TestRecordOutcome(t *testing.T) {
	m := New("test")
	res := call.Result{
		CallID:   "call-1",
		Scenario: "enquete",
		Outcome:  call.OutcomeLead,
		Score:    40,
		Duration: 30 * time.Second,
	}
	if err := m.RecordOutcome(context.Background(), res); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("enquete", "LEAD"))
	if got != 1 {
		t.Fatalf("calls_total{enquete,LEAD} = %v, want 1", got)
	}
}

func TestTimedPhasesObservesEachPhase(t *testing.T) {
	m := New("test")
	stub := &stubPhases{}
	timed := m.TimePhases(stub)
	ctx := context.Background()

	if _, err := timed.DetectAnsweringMachine(ctx, "call-1"); err != nil {
		t.Fatalf("DetectAnsweringMachine: %v", err)
	}
	if _, err := timed.Play(ctx, "call-1", "intro.wav", true); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if _, err := timed.Play(ctx, "call-1", "q1.wav", true); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if _, err := timed.WaitForReply(ctx, "call-1", 0); err != nil {
		t.Fatalf("WaitForReply: %v", err)
	}

	if stub.amdCalls != 1 || stub.playCalls != 2 || stub.waitCalls != 1 {
		t.Fatalf("wrapped runner calls = %d/%d/%d, want 1/2/1", stub.amdCalls, stub.playCalls, stub.waitCalls)
	}
	// One series per phase label, each with the observed samples.
	if n := testutil.CollectAndCount(m.PhaseDuration); n != 3 {
		t.Fatalf("phase_duration series = %d, want 3", n)
	}
}
