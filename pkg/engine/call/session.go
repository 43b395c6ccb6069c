// Package call implements the per-call state machine and the process
// level pieces around it: the active-call registry, dial pacing, and
// the engine that consumes PBX events.
package call

import (
	"time"

	"github.com/voxflow-go/voxflow/pkg/engine/scenario"
)

// Outcome is the final status of a call. Every call terminates in
// exactly one of these.
type Outcome string

const (
	OutcomeCompleted     Outcome = "COMPLETED"
	OutcomeNotInterested Outcome = "NOT_INTERESTED"
	OutcomeLead          Outcome = "LEAD"
	OutcomeNoAnswer      Outcome = "NO_ANSWER"
)

// State is the orchestrator's current position in the call lifecycle.
type State string

const (
	StateInit      State = "init"
	StateAMD       State = "amd"
	StateStepLoop  State = "step_loop"
	StateObjection State = "objection"
	StateFinalize  State = "finalize"
	StateDone      State = "done"
)

// Session is the mutable state of one call. It is owned exclusively by
// the goroutine running the call and is never shared; cross-goroutine
// coordination goes through the registry Handle instead.
type Session struct {
	ID       string
	Number   string
	Scenario *scenario.Definition

	State State
	Step  string

	Qualification   *scenario.QualificationTracker
	AutonomousTurns map[string]int // step name -> objection turns used

	ConsecutiveSilences int
	ConsecutiveNoMatch  int

	// forcedFailure is set when a failure counter reached its bound
	// and the call was routed to the scenario's failure step.
	forcedFailure bool

	StartedAt time.Time
}

// NewSession creates the session for one call against a loaded
// scenario, positioned at its entry step.
func NewSession(id, number string, def *scenario.Definition, leadFraction float64) *Session {
	return &Session{
		ID:              id,
		Number:          number,
		Scenario:        def,
		State:           StateInit,
		Step:            def.EntryStep,
		Qualification:   scenario.NewQualificationTracker(leadFraction),
		AutonomousTurns: make(map[string]int),
		StartedAt:       time.Now(),
	}
}

// Result is the terminal record of a call, handed to outcome sinks.
type Result struct {
	CallID   string
	Number   string
	Scenario string
	Outcome  Outcome
	Score    float64
	Lead     bool
	Digits   string
	Duration time.Duration
	Err      error
}
