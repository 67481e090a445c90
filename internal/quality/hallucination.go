package quality

import (
	"fmt"
	"strings"
	"sync"

	"cortex/internal/logging"
	"cortex/internal/types"
)

// trustThreshold: responses scoring at or above this are never trusted.
const trustThreshold = 0.3

// defaultSuspiciousPhrases flag unhedged certainty claims.
var defaultSuspiciousPhrases = []string{
	"definitely",
	"guaranteed",
	"everyone knows",
	"always works",
	"never fails",
	"100% certain",
	"without a doubt",
}

// HallucinationDetector scores response text against adjustable known-fact
// and suspicious-phrase sets. Score = min(1, 0.5·HIGH + 0.2·MEDIUM +
// 0.05·LOW); trusted iff score < 0.3 and no HIGH issues.
type HallucinationDetector struct {
	mu         sync.RWMutex
	knownFacts []string
	suspicious []string
}

// NewHallucinationDetector creates a detector with the default phrase set.
func NewHallucinationDetector() *HallucinationDetector {
	return &HallucinationDetector{
		suspicious: append([]string(nil), defaultSuspiciousPhrases...),
	}
}

// AddKnownFact registers a fact sentence. Responses that negate it are
// flagged HIGH.
func (d *HallucinationDetector) AddKnownFact(fact string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.knownFacts = append(d.knownFacts, fact)
}

// AddSuspiciousPhrase extends the phrase set.
func (d *HallucinationDetector) AddSuspiciousPhrase(phrase string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspicious = append(d.suspicious, strings.ToLower(phrase))
}

// Detect runs the rules over text and returns the scored report.
func (d *HallucinationDetector) Detect(text string) *types.HallucinationReport {
	d.mu.RLock()
	facts := append([]string(nil), d.knownFacts...)
	phrases := append([]string(nil), d.suspicious...)
	d.mu.RUnlock()

	report := &types.HallucinationReport{}
	lower := strings.ToLower(text)

	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			report.Issues = append(report.Issues, types.QualityIssue{
				Severity:    types.SeverityMedium,
				Description: fmt.Sprintf("suspicious certainty phrase %q", phrase),
			})
		}
	}

	for _, fact := range facts {
		if negatesFact(lower, strings.ToLower(fact)) {
			report.Issues = append(report.Issues, types.QualityIssue{
				Severity:    types.SeverityHigh,
				Description: fmt.Sprintf("contradicts known fact %q", fact),
			})
		}
	}

	// Unsupported numeric precision in otherwise vague prose reads as a
	// fabrication signal, but only weakly.
	if strings.Contains(lower, "exactly ") && !strings.Contains(text, "```") {
		report.Issues = append(report.Issues, types.QualityIssue{
			Severity:    types.SeverityLow,
			Description: "unsupported exact-value claim",
		})
	}

	var high, medium, low int
	for _, issue := range report.Issues {
		switch issue.Severity {
		case types.SeverityHigh:
			high++
		case types.SeverityMedium:
			medium++
		case types.SeverityLow:
			low++
		}
	}
	report.Score = 0.5*float64(high) + 0.2*float64(medium) + 0.05*float64(low)
	if report.Score > 1 {
		report.Score = 1
	}
	report.Trusted = report.Score < trustThreshold && high == 0

	logging.Quality("hallucination check: score=%.2f trusted=%v issues=%d", report.Score, report.Trusted, len(report.Issues))
	return report
}

// negatesFact reports whether the text asserts the negation of a known fact.
// The heuristic matches the fact's subject words plus an adjacent negation
// marker.
func negatesFact(lower, fact string) bool {
	words := strings.Fields(fact)
	if len(words) < 2 {
		return false
	}
	matched := 0
	for _, w := range words {
		if len(w) >= 3 && strings.Contains(lower, w) {
			matched++
		}
	}
	if matched*2 < len(words) {
		return false
	}
	for _, neg := range []string{"not ", "n't ", "never ", "no longer "} {
		if strings.Contains(lower, neg) {
			return true
		}
	}
	return false
}
