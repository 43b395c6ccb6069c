// Package scenario loads, validates, and navigates conversation
// definitions. A definition is immutable once loaded and shared
// read-only across calls through the cache.
package scenario

import (
	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
)

// Audio types accepted on a step.
const (
	AudioTypeFile = "audio"
	AudioTypeNone = "none"
)

// Wildcard is the fallback key in a step's intent map.
const Wildcard = "*"

// Bounds enforced at load time.
const (
	MaxAutonomousTurnsLimit = 10
	MaxQualificationWeight  = 100
)

// StepConfig configures one conversation step.
type StepConfig struct {
	Message            string            `json:"message"`
	AudioType          string            `json:"audio_type"`
	Audio              string            `json:"audio,omitempty"`
	BargeIn            *bool             `json:"barge_in,omitempty"` // nil inherits the scenario default
	TimeoutSec         float64           `json:"timeout_s,omitempty"`
	MaxAutonomousTurns int               `json:"max_autonomous_turns,omitempty"`
	Qualifying         bool              `json:"qualifying,omitempty"`
	Weight             int               `json:"weight,omitempty"`
	Terminal           bool              `json:"terminal,omitempty"`
	Next               map[string]string `json:"next,omitempty"`
}

// BargeInEnabled resolves the step flag against the scenario default.
func (s StepConfig) BargeInEnabled(def *Definition) bool {
	if s.BargeIn != nil {
		return *s.BargeIn
	}
	return def.BargeIn
}

// Definition is one loaded scenario document.
type Definition struct {
	Name        string                `json:"name"`
	Voice       string                `json:"voice,omitempty"`
	Theme       string                `json:"theme"`
	BargeIn     bool                  `json:"barge_in"`
	EntryStep   string                `json:"entry"`
	FailureStep string                `json:"failure_step,omitempty"`
	Rail        []string              `json:"rail,omitempty"`
	Variables   map[string]string     `json:"variables,omitempty"`
	Steps       map[string]StepConfig `json:"steps"`
}

// Step returns the config for name.
func (d *Definition) Step(name string) (StepConfig, bool) {
	s, ok := d.Steps[name]
	return s, ok
}

// Validate checks the structural invariants of a definition. A failed
// validation is fatal: no call may start on the scenario.
func Validate(d *Definition) error {
	if d.Name == "" {
		return callerr.NewScenarioValidationError("scenario name is required", "name")
	}
	if len(d.Steps) == 0 {
		return callerr.NewScenarioValidationError("scenario has no steps", "steps")
	}
	if d.EntryStep == "" {
		return callerr.NewScenarioValidationError("entry step is required", "entry")
	}
	if _, ok := d.Steps[d.EntryStep]; !ok {
		return callerr.NewScenarioValidationError("entry step does not exist", d.EntryStep)
	}
	if d.FailureStep != "" {
		if _, ok := d.Steps[d.FailureStep]; !ok {
			return callerr.NewScenarioValidationError("failure step does not exist", d.FailureStep)
		}
	}

	onRail := make(map[string]bool, len(d.Rail))
	for _, railStep := range d.Rail {
		onRail[railStep] = true
	}

	for name, step := range d.Steps {
		if step.Message == "" {
			return callerr.NewScenarioValidationError("step message is required", name)
		}
		switch step.AudioType {
		case AudioTypeFile:
			if step.Audio == "" {
				return callerr.NewScenarioValidationError("audio reference required when audio_type is audio", name)
			}
		case AudioTypeNone:
		default:
			return callerr.NewScenarioValidationError("audio_type must be audio or none", name)
		}
		// Rail steps route positionally and need no intent mapping.
		if !step.Terminal && len(step.Next) == 0 && !onRail[name] {
			return callerr.NewScenarioValidationError("non-terminal step needs an intent mapping", name)
		}
		for intent, target := range step.Next {
			if _, ok := d.Steps[target]; !ok {
				return callerr.NewScenarioValidationError("step routes to unknown step "+target+" for intent "+intent, name)
			}
		}
		if step.MaxAutonomousTurns < 0 || step.MaxAutonomousTurns > MaxAutonomousTurnsLimit {
			return callerr.NewScenarioValidationError("max_autonomous_turns out of range [0,10]", name)
		}
		if step.Weight < 0 || step.Weight > MaxQualificationWeight {
			return callerr.NewScenarioValidationError("qualification weight out of range [0,100]", name)
		}
	}

	for _, railStep := range d.Rail {
		if _, ok := d.Steps[railStep]; !ok {
			return callerr.NewScenarioValidationError("rail references unknown step", railStep)
		}
	}
	return nil
}

// NextStep resolves the transition for intent on current: exact intent
// entry first, then the wildcard. No route is fatal for the step.
func NextStep(d *Definition, current, intentName string) (string, error) {
	step, ok := d.Steps[current]
	if !ok {
		return "", callerr.NewNotFoundError("unknown step " + current)
	}
	if target, ok := step.Next[intentName]; ok {
		return target, nil
	}
	if target, ok := step.Next[Wildcard]; ok {
		return target, nil
	}
	return "", callerr.NewNoRouteError(current, intentName)
}

// NextRailStep returns the rail entry following current, or ok=false
// at the end of the rail (or when current is not on it).
func NextRailStep(d *Definition, current string) (string, bool) {
	for i, name := range d.Rail {
		if name == current {
			if i+1 < len(d.Rail) {
				return d.Rail[i+1], true
			}
			return "", false
		}
	}
	return "", false
}
