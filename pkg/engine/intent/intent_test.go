package intent

import (
	"testing"
)

func TestClassifyStages(t *testing.T) {
	c := New(DefaultConfig())

	tests := []struct {
		in      string
		want    Intent
		minConf float64
		reason  string
	}{
		{"", Silence, 1.0, ReasonSilence},
		{"   ", Silence, 1.0, ReasonSilence},
		{"non merci", Deny, 0.8, ReasonNegationPhrase},
		{"euh non merci au revoir", Deny, 0.8, ReasonNegationPhrase},
		{"comment ça marche", Question, 0.85, ReasonExpression},
		{"pourquoi pas", Affirm, 0.9, ReasonExpression},
		{"combien ça coûte", Question, 0.85, ReasonInterrogative},
		{"jamais de la vie", Deny, 0.8, ReasonNegationWord},
		{"oui", Affirm, 0.6, ReasonKeyword},
		{"oui oui parfait", Affirm, 0.6, ReasonKeyword},
		{"c'est trop cher pour moi", Objection, 0.5, ReasonExpression},
		{"le prix me semble élevé", Objection, 0.5, ReasonKeyword},
		{"blablabla", Unsure, 0, ReasonNoMatch},
	}

	for _, tt := range tests {
		got := c.Classify(tt.in)
		if got.Intent != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s (reason %s)", tt.in, got.Intent, tt.want, got.Reason)
		}
		if got.Confidence < tt.minConf {
			t.Fatalf("Classify(%q) confidence = %.2f, want >= %.2f", tt.in, got.Confidence, tt.minConf)
		}
		if got.Reason != tt.reason {
			t.Fatalf("Classify(%q) reason = %s, want %s", tt.in, got.Reason, tt.reason)
		}
	}
}

func TestLongestExpressionWins(t *testing.T) {
	c := New(DefaultConfig())

	// "comment ça marche" contains the affirm expression "ça marche";
	// the longer question expression must win.
	got := c.Classify("alors comment ça marche exactement")
	if got.Intent != Question {
		t.Fatalf("intent = %s, want question", got.Intent)
	}
	if got.Reason != ReasonExpression {
		t.Fatalf("reason = %s, want %s", got.Reason, ReasonExpression)
	}
}

func TestInterrogativeOnlyInFirstThreeTokens(t *testing.T) {
	c := New(DefaultConfig())

	got := c.Classify("oui je me demande vaguement comment")
	if got.Intent == Question {
		t.Fatalf("interrogative past the third token must not classify as question")
	}
}

func TestKeywordConfidenceScalesWithMatches(t *testing.T) {
	c := New(DefaultConfig())

	one := c.Classify("oui")
	three := c.Classify("oui parfait absolument")
	if three.Confidence <= one.Confidence {
		t.Fatalf("confidence %.2f (3 matches) should exceed %.2f (1 match)", three.Confidence, one.Confidence)
	}
	if three.Confidence > 0.95 {
		t.Fatalf("confidence capped at 0.95, got %.2f", three.Confidence)
	}
}

func TestPriorityDenyOverAffirm(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg)

	// "refuse" (deny keyword) and "oui" (affirm keyword) in one
	// utterance: deny has priority.
	got := c.Classify("oui enfin je refuse quand même")
	if got.Intent != Deny {
		t.Fatalf("intent = %s, want deny by priority", got.Intent)
	}
}
