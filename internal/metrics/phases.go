package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxflow-go/voxflow/pkg/engine/call"
	"github.com/voxflow-go/voxflow/pkg/engine/phase"
)

// TimedPhases decorates a call.PhaseRunner so every phase call lands
// in the PhaseDuration histogram.
type TimedPhases struct {
	next call.PhaseRunner
	hist *prometheus.HistogramVec
}

// TimePhases wraps next with per-phase latency observations.
func (m *Metrics) TimePhases(next call.PhaseRunner) *TimedPhases {
	return &TimedPhases{next: next, hist: m.PhaseDuration}
}

func (t *TimedPhases) DetectAnsweringMachine(ctx context.Context, callID string) (phase.AMDResult, error) {
	start := time.Now()
	res, err := t.next.DetectAnsweringMachine(ctx, callID)
	t.hist.WithLabelValues("amd").Observe(time.Since(start).Seconds())
	return res, err
}

func (t *TimedPhases) Play(ctx context.Context, callID, audioRef string, bargeIn bool) (phase.PlayResult, error) {
	start := time.Now()
	res, err := t.next.Play(ctx, callID, audioRef, bargeIn)
	t.hist.WithLabelValues("play").Observe(time.Since(start).Seconds())
	return res, err
}

func (t *TimedPhases) WaitForReply(ctx context.Context, callID string, timeout time.Duration) (phase.WaitResult, error) {
	start := time.Now()
	res, err := t.next.WaitForReply(ctx, callID, timeout)
	t.hist.WithLabelValues("wait").Observe(time.Since(start).Seconds())
	return res, err
}
