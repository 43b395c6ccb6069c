// Package intent maps a caller utterance to one of a fixed set of
// conversational intents with a staged, short-circuiting rule engine.
// The classifier is stateless and safe for concurrent use.
package intent

import (
	"strings"
)

// Intent is one of the fixed routing intents.
type Intent string

const (
	Affirm    Intent = "affirm"
	Deny      Intent = "deny"
	Unsure    Intent = "unsure"
	Question  Intent = "question"
	Objection Intent = "objection"
	Silence   Intent = "silence"
)

// Reason codes identify which classification stage fired.
const (
	ReasonSilence        = "silence"
	ReasonNegationPhrase = "negation_phrase"
	ReasonExpression     = "expression"
	ReasonInterrogative  = "interrogative"
	ReasonNegationWord   = "negation_word"
	ReasonKeyword        = "keyword"
	ReasonNoMatch        = "no_match"
)

// Result is the outcome of a classification.
type Result struct {
	Intent     Intent
	Confidence float64
	Matched    []string
	Reason     string
}

// Config drives the rule stages. All phrases and words are matched
// against the lowercased utterance.
type Config struct {
	// NegationPhrases short-circuit to deny on substring match.
	NegationPhrases []string

	// Expressions are fixed multi-word expressions per intent. The
	// longest expression found anywhere in the input wins across all
	// intents, not the first one encountered.
	Expressions map[Intent][]string

	// NegationWords are standalone words that force deny.
	NegationWords []string

	// InterrogativeWords mark a question when one of the first three
	// tokens matches.
	InterrogativeWords []string

	// Keywords are per-intent bag-of-words lists for the final stage.
	Keywords map[Intent][]string

	// Priority resolves keyword-stage ties between intents.
	Priority []Intent

	// BaseConfidence is the keyword-stage floor per intent.
	BaseConfidence map[Intent]float64
}

// DefaultConfig returns the French ruleset used in production.
func DefaultConfig() Config {
	return Config{
		NegationPhrases: []string{
			"non merci",
			"pas intéressé",
			"pas interessé",
			"ça ne m'intéresse pas",
			"je ne suis pas intéressé",
			"n'appelez plus",
			"ne me rappelez pas",
			"laissez-moi tranquille",
		},
		Expressions: map[Intent][]string{
			Affirm: {
				"pourquoi pas",
				"bien sûr",
				"tout à fait",
				"ça marche",
				"allez-y",
				"je vous écoute",
				"avec plaisir",
			},
			Deny: {
				"pas du tout",
				"hors de question",
				"aucun intérêt",
			},
			Question: {
				"comment ça marche",
				"c'est quoi",
				"qu'est-ce que",
				"en quoi ça consiste",
			},
			Objection: {
				"pas le temps",
				"trop cher",
				"déjà équipé",
				"je dois réfléchir",
				"rappelez-moi plus tard",
				"c'est une arnaque",
			},
			Unsure: {
				"je ne sais pas",
				"sais pas",
				"peut-être",
			},
		},
		NegationWords: []string{"non", "jamais", "aucunement", "nullement"},
		InterrogativeWords: []string{
			"comment", "pourquoi", "quand", "où", "combien",
			"quel", "quelle", "quels", "quelles", "qui", "quoi", "est-ce",
		},
		Keywords: map[Intent][]string{
			Affirm: {
				"oui", "ouais", "ouaip", "d'accord", "ok", "parfait",
				"absolument", "carrément", "volontiers", "évidemment",
				"exactement", "entendu", "super",
			},
			Deny: {
				"refuse", "impossible", "arrêtez", "stop",
			},
			Question: {
				"expliquez", "précisez", "détails",
			},
			Objection: {
				"cher", "coûte", "prix", "budget", "arnaque", "méfiant",
				"concurrent", "fournisseur", "réfléchir", "rappeler",
				"occupé", "conjoint", "épouse", "mari",
			},
			Unsure: {
				"hésite", "incertain", "bof", "mouais", "hmm",
			},
		},
		Priority: []Intent{Deny, Question, Objection, Affirm, Unsure},
		BaseConfidence: map[Intent]float64{
			Deny:      0.60,
			Question:  0.60,
			Objection: 0.55,
			Affirm:    0.60,
			Unsure:    0.50,
		},
	}
}

// Classifier applies the staged rules of a Config.
type Classifier struct {
	cfg           Config
	negationSet   map[string]struct{}
	interrogative map[string]struct{}
}

// New builds a Classifier. A zero-value Config yields a classifier that
// only ever reports silence or unsure.
func New(cfg Config) *Classifier {
	c := &Classifier{
		cfg:           cfg,
		negationSet:   make(map[string]struct{}, len(cfg.NegationWords)),
		interrogative: make(map[string]struct{}, len(cfg.InterrogativeWords)),
	}
	for _, w := range cfg.NegationWords {
		c.negationSet[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range cfg.InterrogativeWords {
		c.interrogative[strings.ToLower(w)] = struct{}{}
	}
	return c
}

// Classify runs the stages in order and returns on the first match.
func (c *Classifier) Classify(utterance string) Result {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return Result{Intent: Silence, Confidence: 1.0, Reason: ReasonSilence}
	}

	for _, phrase := range c.cfg.NegationPhrases {
		if strings.Contains(text, strings.ToLower(phrase)) {
			return Result{Intent: Deny, Confidence: 0.90, Matched: []string{phrase}, Reason: ReasonNegationPhrase}
		}
	}

	if it, expr, ok := c.longestExpression(text); ok {
		return Result{Intent: it, Confidence: 0.95, Matched: []string{expr}, Reason: ReasonExpression}
	}

	tokens := tokenize(text)

	head := tokens
	if len(head) > 3 {
		head = head[:3]
	}
	for _, tok := range head {
		if _, ok := c.interrogative[tok]; ok {
			return Result{Intent: Question, Confidence: 0.85, Matched: []string{tok}, Reason: ReasonInterrogative}
		}
	}

	for _, tok := range tokens {
		if _, ok := c.negationSet[tok]; ok {
			return Result{Intent: Deny, Confidence: 0.80, Matched: []string{tok}, Reason: ReasonNegationWord}
		}
	}

	counts := make(map[Intent][]string)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = struct{}{}
	}
	for it, words := range c.cfg.Keywords {
		for _, w := range words {
			if _, ok := tokenSet[strings.ToLower(w)]; ok {
				counts[it] = append(counts[it], w)
			}
		}
	}
	for _, it := range c.cfg.Priority {
		matched := counts[it]
		if len(matched) == 0 {
			continue
		}
		base := c.cfg.BaseConfidence[it]
		if base == 0 {
			base = 0.5
		}
		conf := base + 0.15*float64(len(matched))
		if conf > 0.95 {
			conf = 0.95
		}
		return Result{Intent: it, Confidence: conf, Matched: matched, Reason: ReasonKeyword}
	}

	return Result{Intent: Unsure, Confidence: 0, Reason: ReasonNoMatch}
}

// longestExpression scans every fixed expression across all intents and
// returns the longest one present in the input.
func (c *Classifier) longestExpression(text string) (Intent, string, bool) {
	var (
		bestIntent Intent
		bestExpr   string
		found      bool
	)
	for it, exprs := range c.cfg.Expressions {
		for _, expr := range exprs {
			e := strings.ToLower(expr)
			if !strings.Contains(text, e) {
				continue
			}
			if !found || len(e) > len(bestExpr) {
				bestIntent, bestExpr, found = it, e, true
			}
		}
	}
	return bestIntent, bestExpr, found
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
