// Package objection resolves free-text caller utterances to rebuttal
// responses. A matcher indexes per-theme objection and FAQ entries and
// answers lookups with an exact index first, then an approximate scan
// with tie-breaking and false-positive guards.
package objection

import (
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// Kind distinguishes objection entries from FAQ entries.
type Kind string

const (
	KindObjection Kind = "objection"
	KindFAQ       Kind = "faq"
)

// Entry is one objection or FAQ with the keywords that select it.
type Entry struct {
	Key      string   `json:"key"`
	Keywords []string `json:"keywords"`
	Response string   `json:"response"`
	AudioRef string   `json:"audio,omitempty"`
	Kind     Kind     `json:"kind"`
	Theme    string   `json:"theme,omitempty"`
}

// Match methods, in decreasing order of strictness.
const (
	MethodDirectLookup = "direct_lookup"
	MethodWholeWord    = "whole_word"
	MethodSubstring    = "substring"
	MethodFuzzy        = "fuzzy"
)

// MatchResult describes the winning entry for an utterance.
type MatchResult struct {
	Key        string
	Response   string
	AudioRef   string
	Kind       Kind
	Score      float64
	Method     string
	Keyword    string
	Confidence string // "high" (score >= 0.8) or "medium"
}

// Guard thresholds for the approximate path.
const (
	highConfidenceScore = 0.8
	minCharOverlap      = 0.25
)

// Matcher holds the built indexes. Immutable after construction and
// safe for concurrent use.
type Matcher struct {
	entries []Entry
	exact   map[string]int // normalized keyword -> entry index, first registration wins
	logger  *slog.Logger
}

// NewMatcher builds the exact-match index and the fuzzy scan list.
// When two entries register the same keyword, the first one wins and
// the collision is logged: with "general" entries merged ahead of
// theme entries, a shared keyword silently shadows the theme response.
func NewMatcher(entries []Entry, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Matcher{
		entries: entries,
		exact:   make(map[string]int),
		logger:  logger,
	}
	for i, e := range entries {
		for _, kw := range e.Keywords {
			norm := normalize(kw)
			if norm == "" {
				continue
			}
			if prev, ok := m.exact[norm]; ok {
				logger.Warn("duplicate objection keyword shadowed",
					"keyword", norm,
					"kept", entries[prev].Key,
					"shadowed", e.Key)
				continue
			}
			m.exact[norm] = i
		}
	}
	return m
}

// EntriesFromFlatMap adapts the legacy phrase->response dataset shape
// into structured entries, one per phrase.
func EntriesFromFlatMap(flat map[string]string, kind Kind) []Entry {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic registration order for the exact index
	out := make([]Entry, 0, len(keys))
	for _, phrase := range keys {
		out = append(out, Entry{
			Key:      phrase,
			Keywords: []string{phrase},
			Response: flat[phrase],
			Kind:     kind,
		})
	}
	return out
}

// Len reports the number of indexed entries.
func (m *Matcher) Len() int { return len(m.entries) }

type candidate struct {
	index   int
	score   float64
	method  string
	keyword string
}

// FindBestMatch resolves input to the best entry at or above minScore.
// The exact index short-circuits with score 1.0; otherwise every
// entry's keywords are scored and the top candidate survives only if
// it clears the minimum score and, below the high-confidence score,
// the character-set overlap guard.
func (m *Matcher) FindBestMatch(input string, minScore float64) (MatchResult, bool) {
	norm := normalize(input)
	if norm == "" {
		return MatchResult{}, false
	}

	if i, ok := m.exact[norm]; ok {
		return m.result(i, 1.0, MethodDirectLookup, norm), true
	}

	cands := make([]candidate, 0, len(m.entries))
	for i, e := range m.entries {
		for _, kw := range e.Keywords {
			k := normalize(kw)
			if k == "" {
				continue
			}
			score, method := scoreKeyword(norm, k)
			if score <= 0 {
				continue
			}
			cands = append(cands, candidate{index: i, score: score, method: method, keyword: k})
		}
	}
	if len(cands) == 0 {
		return MatchResult{}, false
	}

	// Longer keywords are more specific; they win score ties.
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		return len(cands[a].keyword) > len(cands[b].keyword)
	})

	top := cands[0]
	if top.score < minScore {
		return MatchResult{}, false
	}
	if top.score < highConfidenceScore && charOverlap(norm, top.keyword) < minCharOverlap {
		return MatchResult{}, false
	}
	return m.result(top.index, top.score, top.method, top.keyword), true
}

// FindAllMatches scores every entry with a hybrid of text similarity
// and keyword-token overlap and returns up to topN results above
// threshold, best first. Diagnostic use only; live routing goes
// through FindBestMatch.
func (m *Matcher) FindAllMatches(input string, threshold float64, topN int) []MatchResult {
	norm := normalize(input)
	if norm == "" || topN <= 0 {
		return nil
	}

	inputTokens := tokenSet(norm)
	results := make([]MatchResult, 0, len(m.entries))
	for i, e := range m.entries {
		var bestSim float64
		var bestKw string
		kwTokens := make(map[string]struct{})
		for _, kw := range e.Keywords {
			k := normalize(kw)
			if k == "" {
				continue
			}
			for t := range tokenSet(k) {
				kwTokens[t] = struct{}{}
			}
			if sim := similarity(norm, k); sim > bestSim {
				bestSim, bestKw = sim, k
			}
		}
		overlap := tokenOverlap(inputTokens, kwTokens)
		score := 0.7*bestSim + 0.3*overlap
		if score < threshold {
			continue
		}
		r := m.result(i, score, MethodFuzzy, bestKw)
		results = append(results, r)
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

func (m *Matcher) result(i int, score float64, method, keyword string) MatchResult {
	e := m.entries[i]
	conf := "medium"
	if score >= highConfidenceScore {
		conf = "high"
	}
	return MatchResult{
		Key:        e.Key,
		Response:   e.Response,
		AudioRef:   e.AudioRef,
		Kind:       e.Kind,
		Score:      score,
		Method:     method,
		Keyword:    keyword,
		Confidence: conf,
	}
}

// scoreKeyword scores one keyword against the normalized input.
func scoreKeyword(input, keyword string) (float64, string) {
	if input == keyword {
		return 1.0, MethodWholeWord
	}
	if containsWholeWord(input, keyword) {
		return 1.0, MethodWholeWord
	}
	if strings.Contains(keyword, input) {
		return float64(len(input)) / float64(len(keyword)), MethodSubstring
	}
	return similarity(input, keyword), MethodFuzzy
}

// containsWholeWord reports whether keyword occurs in input bounded by
// non-letter runes on both sides.
func containsWholeWord(input, keyword string) bool {
	for start := 0; ; {
		idx := strings.Index(input[start:], keyword)
		if idx < 0 {
			return false
		}
		idx += start
		before := idx == 0 || !isWordRune(lastRune(input[:idx]))
		afterIdx := idx + len(keyword)
		after := afterIdx >= len(input) || !isWordRune(firstRune(input[afterIdx:]))
		if before && after {
			return true
		}
		start = idx + len(keyword)
	}
}

// similarity is a normalized Levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// charOverlap is the Jaccard overlap of the letter/digit rune sets of
// two strings. Guards the fuzzy path against unrelated words that
// merely share a few letters.
func charOverlap(a, b string) float64 {
	sa, sb := runeSet(a), runeSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	out := make(map[rune]struct{})
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out[r] = struct{}{}
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}

func tokenOverlap(input, keywords map[string]struct{}) float64 {
	if len(keywords) == 0 {
		return 0
	}
	inter := 0
	for t := range keywords {
		if _, ok := input[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(keywords))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lastRune(s string) rune {
	var r rune
	for _, c := range s {
		r = c
	}
	return r
}

func firstRune(s string) rune {
	for _, c := range s {
		return c
	}
	return 0
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
