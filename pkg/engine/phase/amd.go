package phase

import (
	"strings"
)

// AMDVerdict is the answering-machine-detection outcome.
type AMDVerdict string

const (
	AMDHuman   AMDVerdict = "human"
	AMDMachine AMDVerdict = "machine"
	// AMDUnknown means "continue, assume human".
	AMDUnknown AMDVerdict = "unknown"
)

// AMDResult carries the verdict with its evidence.
type AMDResult struct {
	Verdict    AMDVerdict
	Confidence float64
	Transcript string
	Matched    []string
}

// Default French keyword sets. Machine phrases are typical voicemail
// greetings; human phrases are what a live pickup says first.
var (
	defaultHumanKeywords = []string{
		"allô", "allo", "oui", "bonjour", "bonsoir", "j'écoute", "qui est",
	}
	defaultMachineKeywords = []string{
		"répondeur", "messagerie", "boîte vocale", "bip sonore",
		"après le signal", "après le bip", "laisser un message",
		"laissez votre message", "n'est pas disponible",
		"actuellement indisponible", "rappeler ultérieurement",
	}
)

// classifyAMD scores a greeting transcript against both keyword sets.
// A machine match always outranks human matches: answering machines
// routinely open with human-sounding greetings.
func classifyAMD(transcript string, humanKeywords, machineKeywords []string, minConfidence float64) AMDResult {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return AMDResult{Verdict: AMDUnknown, Transcript: transcript}
	}

	machineHits := matchKeywords(text, machineKeywords)
	humanHits := matchKeywords(text, humanKeywords)

	var verdict AMDVerdict
	var hits []string
	switch {
	case len(machineHits) > 0:
		verdict, hits = AMDMachine, machineHits
	case len(humanHits) > 0:
		verdict, hits = AMDHuman, humanHits
	default:
		return AMDResult{Verdict: AMDUnknown, Transcript: transcript}
	}

	conf := confidenceForHits(len(hits))
	if conf < minConfidence {
		return AMDResult{Verdict: AMDUnknown, Confidence: conf, Transcript: transcript, Matched: hits}
	}
	return AMDResult{Verdict: verdict, Confidence: conf, Transcript: transcript, Matched: hits}
}

func matchKeywords(text string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func confidenceForHits(n int) float64 {
	switch {
	case n >= 3:
		return 0.95
	case n == 2:
		return 0.8
	case n == 1:
		return 0.6
	default:
		return 0
	}
}
