package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/intent"
	"github.com/voxflow-go/voxflow/pkg/engine/objection"
	"github.com/voxflow-go/voxflow/pkg/engine/phase"
	"github.com/voxflow-go/voxflow/pkg/engine/scenario"
	"github.com/voxflow-go/voxflow/pkg/engine/stt"
	"github.com/voxflow-go/voxflow/pkg/engine/transport"
)

// PhaseRunner is the slice of the phase executor the orchestrator
// drives. *phase.Executor satisfies it.
type PhaseRunner interface {
	DetectAnsweringMachine(ctx context.Context, callID string) (phase.AMDResult, error)
	Play(ctx context.Context, callID, audioRef string, bargeIn bool) (phase.PlayResult, error)
	WaitForReply(ctx context.Context, callID string, timeout time.Duration) (phase.WaitResult, error)
}

// MatcherSource resolves the objection matcher for a theme.
// *objection.Store satisfies it.
type MatcherSource interface {
	MatcherFor(theme string) (*objection.Matcher, error)
}

// Config bounds one orchestrator's behavior across all calls.
type Config struct {
	CallerID string

	// AnswerTimeout bounds the wait for the answered event after an
	// origination.
	AnswerTimeout time.Duration

	// MaxConsecutiveSilences and MaxConsecutiveNoMatch force a
	// transition to the scenario's failure step when reached.
	MaxConsecutiveSilences int
	MaxConsecutiveNoMatch  int

	// ObjectionMinScore is the fuzzy-match floor for rebuttal lookups.
	ObjectionMinScore float64

	// LeadFraction is the share of visited qualifying weight needed to
	// finalize a call as LEAD. Zero selects the scenario default.
	LeadFraction float64

	// DrainGrace bounds the wait for in-flight calls at shutdown.
	DrainGrace time.Duration

	// OnCallStart and OnCallEnd run around each admitted call, after
	// dial pacing lets the origination through. Refused attempts never
	// invoke them.
	OnCallStart func()
	OnCallEnd   func()
}

func (c Config) withDefaults() Config {
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = 30 * time.Second
	}
	if c.MaxConsecutiveSilences <= 0 {
		c.MaxConsecutiveSilences = 2
	}
	if c.MaxConsecutiveNoMatch <= 0 {
		c.MaxConsecutiveNoMatch = 3
	}
	if c.ObjectionMinScore <= 0 {
		c.ObjectionMinScore = 0.3
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 30 * time.Second
	}
	return c
}

// Orchestrator runs the per-call state machine. It is stateless across
// calls and safe for concurrent use; all per-call state lives in the
// Session owned by the calling goroutine.
type Orchestrator struct {
	transport  transport.Transport
	phases     PhaseRunner
	classifier *intent.Classifier
	objections MatcherSource
	sentiment  stt.Sentiment
	cfg        Config
	logger     *slog.Logger
}

func NewOrchestrator(t transport.Transport, phases PhaseRunner, cls *intent.Classifier, objections MatcherSource, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transport:  t,
		phases:     phases,
		classifier: cls,
		objections: objections,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// SetSentiment attaches the optional sentiment collaborator. Analysis
// runs off the call path and its failures are ignored.
func (o *Orchestrator) SetSentiment(s stt.Sentiment) { o.sentiment = s }

// Run executes one answered call to completion and returns its
// terminal result. The handle must be the registry entry for this
// call; ctx cancellation means the call ended from outside (caller
// hangup or shutdown).
func (o *Orchestrator) Run(ctx context.Context, sess *Session, h *Handle) Result {
	def := sess.Scenario
	log := o.logger.With("call_id", sess.ID, "scenario", def.Name)

	sess.State = StateAMD
	amd, err := o.phases.DetectAnsweringMachine(ctx, sess.ID)
	if err != nil {
		return o.finalizeError(ctx, sess, h, log, err)
	}
	if amd.Verdict == phase.AMDMachine {
		log.Info("answering machine detected", "confidence", amd.Confidence, "matched", amd.Matched)
		return o.hangupWith(ctx, sess, h, log, OutcomeNoAnswer, nil)
	}
	h.MarkHumanAnswered()

	sess.State = StateStepLoop
	for {
		step, ok := def.Step(sess.Step)
		if !ok {
			log.Error("step missing from scenario", "step", sess.Step)
			return o.hangupWith(ctx, sess, h, log, o.finalOutcome(sess), nil)
		}
		log.Info("entering step", "step", sess.Step, "terminal", step.Terminal)

		if audio := stepAudio(step); audio != "" {
			playRes, err := o.phases.Play(ctx, sess.ID, audio, step.BargeInEnabled(def))
			if err != nil {
				return o.finalizeError(ctx, sess, h, log, err)
			}
			if playRes.Interrupted {
				log.Debug("playback interrupted", "step", sess.Step, "at", playRes.InterruptedAt)
			}
		}

		if step.Terminal {
			return o.hangupWith(ctx, sess, h, log, o.finalOutcome(sess), nil)
		}

		wait, err := o.phases.WaitForReply(ctx, sess.ID, stepTimeout(step))
		if err != nil {
			return o.finalizeError(ctx, sess, h, log, err)
		}

		res := o.classify(wait)
		log.Debug("reply classified", "step", sess.Step, "intent", res.Intent, "confidence", res.Confidence, "reason", res.Reason)
		o.analyzeSentiment(ctx, log, wait.Transcript)

		if res.Intent == intent.Silence {
			sess.ConsecutiveSilences++
			if sess.ConsecutiveSilences >= o.cfg.MaxConsecutiveSilences {
				log.Info("consecutive silence bound reached", "count", sess.ConsecutiveSilences)
				if o.forceFailure(sess, log) {
					continue
				}
				return o.hangupWith(ctx, sess, h, log, OutcomeNotInterested, nil)
			}
		} else {
			sess.ConsecutiveSilences = 0
			if res.Reason == intent.ReasonNoMatch {
				sess.ConsecutiveNoMatch++
				if sess.ConsecutiveNoMatch >= o.cfg.MaxConsecutiveNoMatch {
					log.Info("consecutive no-match bound reached", "count", sess.ConsecutiveNoMatch)
					if o.forceFailure(sess, log) {
						continue
					}
					return o.hangupWith(ctx, sess, h, log, OutcomeNotInterested, nil)
				}
			} else {
				sess.ConsecutiveNoMatch = 0
			}
		}

		if (res.Intent == intent.Objection || res.Intent == intent.Question) && step.MaxAutonomousTurns > 0 {
			res, err = o.objectionLoop(ctx, sess, log, def, step, wait.Transcript)
			if err != nil {
				return o.finalizeError(ctx, sess, h, log, err)
			}
		}

		sess.Qualification.Accumulate(step, res.Intent == intent.Affirm)

		next, ok := o.route(def, sess, log, res)
		if !ok {
			return o.hangupWith(ctx, sess, h, log, o.finalOutcome(sess), nil)
		}
		sess.Step = next
	}
}

// objectionLoop autonomously rebuts objections and FAQs for the
// current step, up to its max autonomous turns. An affirm resolves the
// loop; anything else, or exhausting the turns, takes the deny path.
func (o *Orchestrator) objectionLoop(ctx context.Context, sess *Session, log *slog.Logger, def *scenario.Definition, step scenario.StepConfig, text string) (intent.Result, error) {
	sess.State = StateObjection
	defer func() { sess.State = StateStepLoop }()

	unresolved := intent.Result{Intent: intent.Deny, Confidence: 0.5, Reason: "objection_unresolved"}

	matcher, err := o.objections.MatcherFor(def.Theme)
	if err != nil {
		// Lookup misses fall through to the generic deny path.
		log.Warn("objection set unavailable", "theme", def.Theme, "error", err)
		return unresolved, nil
	}

	for sess.AutonomousTurns[sess.Step] < step.MaxAutonomousTurns {
		match, ok := matcher.FindBestMatch(text, o.cfg.ObjectionMinScore)
		if !ok {
			log.Info("no rebuttal found", "step", sess.Step)
			return unresolved, nil
		}
		if match.AudioRef == "" {
			log.Warn("rebuttal has no rendered audio", "key", match.Key)
			return unresolved, nil
		}
		sess.AutonomousTurns[sess.Step]++
		log.Info("playing rebuttal",
			"step", sess.Step,
			"key", match.Key,
			"method", match.Method,
			"score", match.Score,
			"turn", sess.AutonomousTurns[sess.Step])

		if _, err := o.phases.Play(ctx, sess.ID, match.AudioRef, step.BargeInEnabled(def)); err != nil {
			return intent.Result{}, err
		}
		wait, err := o.phases.WaitForReply(ctx, sess.ID, stepTimeout(step))
		if err != nil {
			return intent.Result{}, err
		}
		if wait.Silence {
			return unresolved, nil
		}
		res := o.classifier.Classify(wait.Transcript)
		log.Debug("rebuttal reply classified", "intent", res.Intent, "confidence", res.Confidence)
		o.analyzeSentiment(ctx, log, wait.Transcript)
		switch res.Intent {
		case intent.Affirm:
			return res, nil
		case intent.Objection, intent.Question:
			text = wait.Transcript
		default:
			return unresolved, nil
		}
	}
	log.Info("autonomous turns exhausted", "step", sess.Step)
	return unresolved, nil
}

// route resolves the next step. Rail scenarios advance linearly; step
// maps resolve exact intent then the wildcard. A missing route falls
// back to the failure step when one exists.
func (o *Orchestrator) route(def *scenario.Definition, sess *Session, log *slog.Logger, res intent.Result) (string, bool) {
	if len(def.Rail) > 0 && !sess.forcedFailure {
		next, ok := scenario.NextRailStep(def, sess.Step)
		if !ok {
			return "", false
		}
		return next, true
	}
	next, err := scenario.NextStep(def, sess.Step, string(res.Intent))
	if err != nil {
		log.Warn("no route for intent", "step", sess.Step, "intent", res.Intent)
		if o.forceFailure(sess, log) {
			return sess.Step, true
		}
		return "", false
	}
	return next, true
}

// forceFailure redirects the call to the scenario's failure step. It
// reports false when there is no failure step to go to, or the call is
// already on it.
func (o *Orchestrator) forceFailure(sess *Session, log *slog.Logger) bool {
	def := sess.Scenario
	if def.FailureStep == "" || sess.Step == def.FailureStep {
		return false
	}
	log.Info("forcing failure step", "from", sess.Step, "to", def.FailureStep)
	sess.Step = def.FailureStep
	sess.forcedFailure = true
	sess.ConsecutiveSilences = 0
	sess.ConsecutiveNoMatch = 0
	return true
}

func (o *Orchestrator) classify(wait phase.WaitResult) intent.Result {
	if wait.Silence {
		return intent.Result{Intent: intent.Silence, Reason: intent.ReasonSilence}
	}
	return o.classifier.Classify(wait.Transcript)
}

func (o *Orchestrator) analyzeSentiment(ctx context.Context, log *slog.Logger, text string) {
	if o.sentiment == nil || text == "" {
		return
	}
	go func() {
		res, err := o.sentiment.Analyze(context.WithoutCancel(ctx), text)
		if err != nil {
			return
		}
		log.Debug("sentiment", "sentiment", res.Sentiment, "confidence", res.Confidence)
	}()
}

// finalOutcome resolves the terminal status of a conversation that ran
// to its end. Lead qualification wins; otherwise a visited qualifying
// flow that fell short, or a forced failure transition, means the
// caller declined.
func (o *Orchestrator) finalOutcome(sess *Session) Outcome {
	if sess.Qualification.IsLead() {
		return OutcomeLead
	}
	if sess.forcedFailure || sess.Qualification.Visited() > 0 {
		return OutcomeNotInterested
	}
	return OutcomeCompleted
}

// hangupWith pre-declares the robot hangup, sends the hangup command,
// and builds the terminal result.
func (o *Orchestrator) hangupWith(ctx context.Context, sess *Session, h *Handle, log *slog.Logger, outcome Outcome, cause error) Result {
	sess.State = StateFinalize
	h.DeclareRobotHangup(outcome)
	if err := o.transport.Hangup(context.WithoutCancel(ctx), sess.ID); err != nil {
		log.Warn("hangup command failed", "error", err)
	}
	sess.State = StateDone
	res := o.result(sess, outcome, cause)
	log.Info("call finished",
		"outcome", res.Outcome,
		"score", res.Score,
		"lead", res.Lead,
		"duration", res.Duration.Round(time.Millisecond))
	return res
}

// finalizeError ends the call after a phase failure. Context
// cancellation means the call already ended from outside and the
// handle's hangup bookkeeping decides the status; anything else is a
// transport failure fatal for this call only.
func (o *Orchestrator) finalizeError(ctx context.Context, sess *Session, h *Handle, log *slog.Logger, err error) Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome, robot := h.HangupOutcome()
		sess.State = StateDone
		res := o.result(sess, outcome, nil)
		log.Info("call ended externally", "outcome", outcome, "robot_hangup", robot)
		return res
	}
	log.Error("phase failure", "state", sess.State, "error", err)
	return o.hangupWith(ctx, sess, h, log, OutcomeCompleted, err)
}

func (o *Orchestrator) result(sess *Session, outcome Outcome, err error) Result {
	return Result{
		CallID:   sess.ID,
		Number:   sess.Number,
		Scenario: sess.Scenario.Name,
		Outcome:  outcome,
		Score:    sess.Qualification.Score(),
		Lead:     outcome == OutcomeLead,
		Duration: time.Since(sess.StartedAt),
		Err:      err,
	}
}

func stepAudio(step scenario.StepConfig) string {
	if step.AudioType == scenario.AudioTypeFile {
		return step.Audio
	}
	return ""
}

func stepTimeout(step scenario.StepConfig) time.Duration {
	if step.TimeoutSec > 0 {
		return time.Duration(step.TimeoutSec * float64(time.Second))
	}
	return 0
}
