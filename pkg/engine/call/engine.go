package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
	"github.com/voxflow-go/voxflow/pkg/engine/scenario"
	"github.com/voxflow-go/voxflow/pkg/engine/transport"
)

// ErrDialRefused is returned when dial pacing rejects an origination.
var ErrDialRefused = errors.New("dial pacing refused the call")

// ScenarioSource loads scenario definitions by name.
// *scenario.Loader satisfies it.
type ScenarioSource interface {
	Load(name string) (*scenario.Definition, error)
}

// OutcomeSink receives the terminal result of every call. Sink
// failures are logged, never propagated into call flow.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, res Result) error
}

// Engine ties the orchestrator to the PBX event stream, the registry,
// and dial pacing. One engine serves the whole process.
type Engine struct {
	transport transport.Transport
	orch      *Orchestrator
	scenarios ScenarioSource
	registry  *Registry
	limiter   *DialLimiter
	sinks     []OutcomeSink
	cfg       Config
	logger    *slog.Logger

	earlyMu sync.Mutex
	early   map[string]heldEvents
}

// heldEvents are events that raced ahead of their call's registration.
type heldEvents struct {
	evs []transport.Event
	at  time.Time
}

const (
	maxHeldEvents = 8
	heldEventTTL  = 5 * time.Second
)

func NewEngine(t transport.Transport, orch *Orchestrator, scenarios ScenarioSource, reg *Registry, limiter *DialLimiter, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		transport: t,
		orch:      orch,
		scenarios: scenarios,
		registry:  reg,
		limiter:   limiter,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		early:     make(map[string]heldEvents),
	}
}

// AddSink registers an outcome sink. Not safe to call once calls are
// in flight.
func (e *Engine) AddSink(s OutcomeSink) { e.sinks = append(e.sinks, s) }

// Serve consumes the PBX event stream and routes events to active
// calls. It returns when the context is cancelled or the stream
// closes.
func (e *Engine) Serve(ctx context.Context) error {
	events := e.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleEvent(ev transport.Event) {
	h, ok := e.registry.Get(ev.CallID)
	if !ok {
		// The PBX can emit answered or hangup before Dial has
		// registered the call; hold the event for replay.
		e.holdEarly(ev)
		return
	}
	switch ev.Type {
	case transport.EventAnswered:
		h.markAnswered()
	case transport.EventHangup:
		outcome, robot := h.HangupOutcome()
		e.logger.Info("hangup event", "call_id", ev.CallID, "outcome", outcome, "robot_hangup", robot)
		h.cancel()
	case transport.EventDTMF:
		h.RecordDigit(ev.Digit)
		e.logger.Info("dtmf", "call_id", ev.CallID, "digit", ev.Digit)
	}
}

func (e *Engine) holdEarly(ev transport.Event) {
	e.earlyMu.Lock()
	defer e.earlyMu.Unlock()
	now := time.Now()
	for id, held := range e.early {
		if now.Sub(held.at) > heldEventTTL {
			delete(e.early, id)
		}
	}
	held := e.early[ev.CallID]
	if len(held.evs) >= maxHeldEvents {
		e.logger.Debug("dropping event for unknown call", "type", ev.Type, "call_id", ev.CallID)
		return
	}
	if held.evs == nil {
		held.at = now
	}
	held.evs = append(held.evs, ev)
	e.early[ev.CallID] = held
}

func (e *Engine) takeEarly(callID string) []transport.Event {
	e.earlyMu.Lock()
	defer e.earlyMu.Unlock()
	held, ok := e.early[callID]
	if !ok {
		return nil
	}
	delete(e.early, callID)
	return held.evs
}

// Dial places one outbound call and runs it to completion, blocking
// the calling goroutine. Serve must be running for events to reach the
// call.
func (e *Engine) Dial(ctx context.Context, number, scenarioName string) (Result, error) {
	decision := e.limiter.Acquire(time.Now())
	if !decision.Allowed {
		return Result{}, fmt.Errorf("%w: retry after %ds", ErrDialRefused, decision.RetryAfter)
	}
	defer decision.Permit.Release()
	if e.cfg.OnCallStart != nil {
		e.cfg.OnCallStart()
	}
	if e.cfg.OnCallEnd != nil {
		defer e.cfg.OnCallEnd()
	}

	def, err := e.scenarios.Load(scenarioName)
	if err != nil {
		return Result{}, err
	}

	callID, err := e.transport.Originate(ctx, number, e.cfg.CallerID)
	if err != nil {
		return Result{}, callerr.NewTransportError(callID, "originate: "+err.Error())
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h, err := e.registry.Register(callID, cancel)
	if err != nil {
		_ = e.transport.Hangup(context.WithoutCancel(ctx), callID)
		return Result{}, err
	}
	defer e.registry.Remove(callID)
	defer func() { e.takeEarly(callID) }()

	// Deliver events that beat the registration.
	for _, ev := range e.takeEarly(callID) {
		e.handleEvent(ev)
	}

	sess := NewSession(callID, number, def, e.cfg.LeadFraction)
	e.logger.Info("call originated", "call_id", callID, "number", number, "scenario", def.Name)

	answerTimer := time.NewTimer(e.cfg.AnswerTimeout)
	defer answerTimer.Stop()
	select {
	case <-h.Answered():
	case <-answerTimer.C:
		h.DeclareRobotHangup(OutcomeNoAnswer)
		_ = e.transport.Hangup(context.WithoutCancel(ctx), callID)
		return e.finish(ctx, sess, h, OutcomeNoAnswer), nil
	case <-callCtx.Done():
		outcome, _ := h.HangupOutcome()
		return e.finish(ctx, sess, h, outcome), nil
	}

	res := e.orch.Run(callCtx, sess, h)
	res.Digits = h.Digits()
	e.record(ctx, res)
	return res, nil
}

// Drain stops admitting calls and waits for in-flight ones up to the
// configured grace period.
func (e *Engine) Drain(ctx context.Context) {
	active := e.registry.Len()
	e.logger.Info("draining", "active_calls", active)
	forced := e.registry.Drain(ctx, e.cfg.DrainGrace)
	if forced > 0 {
		e.logger.Warn("force-cancelled calls at shutdown", "count", forced)
	}
}

func (e *Engine) finish(ctx context.Context, sess *Session, h *Handle, outcome Outcome) Result {
	res := Result{
		CallID:   sess.ID,
		Number:   sess.Number,
		Scenario: sess.Scenario.Name,
		Outcome:  outcome,
		Digits:   h.Digits(),
		Duration: time.Since(sess.StartedAt),
	}
	e.record(ctx, res)
	return res
}

func (e *Engine) record(ctx context.Context, res Result) {
	for _, s := range e.sinks {
		if err := s.RecordOutcome(context.WithoutCancel(ctx), res); err != nil {
			e.logger.Warn("outcome sink failed", "call_id", res.CallID, "error", err)
		}
	}
}
