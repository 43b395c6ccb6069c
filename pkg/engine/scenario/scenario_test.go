package scenario

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxflow-go/voxflow/pkg/engine/cache"
	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
)

func boolPtr(b bool) *bool { return &b }

func validDefinition() *Definition {
	return &Definition{
		Name:      "vente_b2c",
		Theme:     "finance",
		BargeIn:   true,
		EntryStep: "intro",
		Rail:      []string{"intro", "q1", "bye"},
		Steps: map[string]StepConfig{
			"intro": {
				Message:   "Bonjour",
				AudioType: AudioTypeFile,
				Audio:     "intro.wav",
				Next:      map[string]string{"affirm": "q1", "*": "bye"},
			},
			"q1": {
				Message:            "Première question",
				AudioType:          AudioTypeNone,
				Qualifying:         true,
				Weight:             40,
				MaxAutonomousTurns: 2,
				BargeIn:            boolPtr(false),
				Next:               map[string]string{"affirm": "bye", "deny": "bye", "*": "bye"},
			},
			"bye": {
				Message:   "Au revoir",
				AudioType: AudioTypeNone,
				Terminal:  true,
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validDefinition()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"missing message", func(d *Definition) {
			s := d.Steps["q1"]
			s.Message = ""
			d.Steps["q1"] = s
		}},
		{"bad audio type", func(d *Definition) {
			s := d.Steps["q1"]
			s.AudioType = "tts"
			d.Steps["q1"] = s
		}},
		{"audio ref missing", func(d *Definition) {
			s := d.Steps["intro"]
			s.Audio = ""
			d.Steps["intro"] = s
		}},
		{"no intent map on non-terminal", func(d *Definition) {
			s := d.Steps["q1"]
			s.Next = nil
			d.Steps["q1"] = s
		}},
		{"rail references unknown step", func(d *Definition) {
			d.Rail = append(d.Rail, "ghost")
		}},
		{"turns out of range", func(d *Definition) {
			s := d.Steps["q1"]
			s.MaxAutonomousTurns = 11
			d.Steps["q1"] = s
		}},
		{"weight out of range", func(d *Definition) {
			s := d.Steps["q1"]
			s.Weight = 120
			d.Steps["q1"] = s
		}},
		{"unknown entry step", func(d *Definition) {
			d.EntryStep = "ghost"
		}},
		{"route to unknown step", func(d *Definition) {
			s := d.Steps["intro"]
			s.Next = map[string]string{"*": "ghost"}
			d.Steps["intro"] = s
		}},
	}

	for _, tt := range tests {
		d := validDefinition()
		tt.mutate(d)
		err := Validate(d)
		if err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
		var ce *callerr.Error
		if !errors.As(err, &ce) || ce.Type != callerr.ErrScenarioValidation {
			t.Fatalf("%s: error type = %v", tt.name, err)
		}
	}
}

func TestNextStepExactThenWildcard(t *testing.T) {
	d := validDefinition()

	next, err := NextStep(d, "intro", "affirm")
	if err != nil || next != "q1" {
		t.Fatalf("exact route: next=%q err=%v", next, err)
	}

	next, err = NextStep(d, "intro", "objection")
	if err != nil || next != "bye" {
		t.Fatalf("wildcard route: next=%q err=%v", next, err)
	}
}

func TestNextStepNoRoute(t *testing.T) {
	d := validDefinition()
	s := d.Steps["intro"]
	s.Next = map[string]string{"affirm": "q1"}
	d.Steps["intro"] = s

	_, err := NextStep(d, "intro", "deny")
	var ce *callerr.Error
	if !errors.As(err, &ce) || ce.Type != callerr.ErrNoRoute {
		t.Fatalf("err = %v, want no-route", err)
	}
}

func TestNextRailStep(t *testing.T) {
	d := validDefinition()

	next, ok := NextRailStep(d, "intro")
	if !ok || next != "q1" {
		t.Fatalf("rail next = %q ok=%v", next, ok)
	}
	if _, ok := NextRailStep(d, "bye"); ok {
		t.Fatalf("end of rail must report no next step")
	}
	if _, ok := NextRailStep(d, "ghost"); ok {
		t.Fatalf("off-rail step must report no next step")
	}
}

func TestQualificationTracker(t *testing.T) {
	q := NewQualificationTracker(0.65)

	plain := StepConfig{Weight: 50}
	qualifying := StepConfig{Qualifying: true, Weight: 40}

	q.Accumulate(plain, true) // not qualifying: no effect
	if q.Score() != 0 {
		t.Fatalf("score moved on a non-qualifying step")
	}

	q.Accumulate(qualifying, true)
	if q.Score() != 40 {
		t.Fatalf("score = %.0f, want 40", q.Score())
	}
	if !q.IsLead() {
		t.Fatalf("40/40 visited should qualify")
	}

	q.Accumulate(StepConfig{Qualifying: true, Weight: 60}, false)
	// 40 of 100 visited weight < 0.65.
	if q.IsLead() {
		t.Fatalf("40%% of visited weight must not qualify at 0.65")
	}
}

func TestLoaderValidatesAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "vente_b2c", validDefinition())

	l := NewLoader(dir, cache.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	d, err := l.Load("vente_b2c")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Name != "vente_b2c" || len(d.Steps) != 3 {
		t.Fatalf("unexpected definition: %+v", d)
	}

	// Cached: deleting the file must not matter.
	if err := os.Remove(filepath.Join(dir, "vente_b2c.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := l.Load("vente_b2c"); err != nil {
		t.Fatalf("Load (cached): %v", err)
	}

	if _, err := l.Load("missing"); err == nil {
		t.Fatalf("expected not-found for missing scenario")
	}
}

func TestLoaderRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	bad := validDefinition()
	s := bad.Steps["intro"]
	s.AudioType = "tts"
	bad.Steps["intro"] = s
	writeScenario(t, dir, "bad", bad)

	l := NewLoader(dir, cache.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := l.Load("bad")
	var ce *callerr.Error
	if !errors.As(err, &ce) || ce.Type != callerr.ErrScenarioValidation {
		t.Fatalf("err = %v, want scenario validation error", err)
	}
}

func writeScenario(t *testing.T, dir, name string, d *Definition) {
	t.Helper()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
